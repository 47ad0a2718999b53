package mavlink

import "time"

// MAV_RESULT_ACCEPTED is the only COMMAND_ACK result that CommandLong
// treats as success.
const mavResultAccepted = 0

// MAV_CMD ids used by the thin wrappers below.
const (
	cmdSetMessageInterval = 511
	cmdRequestMessage     = 512
)

// ParamValue sends PARAM_REQUEST_READ for name and waits for the matching
// PARAM_VALUE, returning its content.
func (c *Connection) ParamValue(name string) (map[string]Value, error) {
	content, err := c.sendAndWaitTimeout(
		"PARAM_REQUEST_READ",
		map[string]Value{
			"target_system":    IntValue(int64(c.config.SystemID)),
			"target_component": IntValue(int64(c.config.ComponentID)),
			"param_id":         TextValue(name),
			"param_index":      IntValue(-1),
		},
		"PARAM_VALUE",
		map[string]Value{"param_id": TextValue(name)},
		c.config.WaitTimeout,
	)
	if err != nil {
		return nil, &FailedToGetParamError{Param: name}
	}
	return content, nil
}

// SetParam ensures the cached param_type for name, sends PARAM_SET, and
// waits for the acknowledging PARAM_VALUE. The value MAVLink reports back
// may legitimately differ from what was requested (rounding); this is not
// checked.
func (c *Connection) SetParam(name string, value Value) (map[string]Value, error) {
	paramType, ok := c.dispatch.cachedParamType(name)
	if !ok {
		if _, err := c.ParamValue(name); err != nil {
			return nil, &FailedToSetParamError{Param: name}
		}
		paramType, ok = c.dispatch.cachedParamType(name)
		if !ok {
			return nil, &FailedToSetParamError{Param: name}
		}
	}

	content, err := c.sendAndWaitTimeout(
		"PARAM_SET",
		map[string]Value{
			"target_system":    IntValue(int64(c.config.SystemID)),
			"target_component": IntValue(int64(c.config.ComponentID)),
			"param_id":         TextValue(name),
			"param_value":      value,
			"param_type":       IntValue(paramType),
		},
		"PARAM_VALUE",
		map[string]Value{"param_id": TextValue(name)},
		c.config.WaitTimeout,
	)
	if err != nil {
		return nil, &FailedToSetParamError{Param: name}
	}
	return content, nil
}

// RequestParams enables keep-all accumulation for PARAM_VALUE, sends
// PARAM_REQUEST_LIST, and blocks until every parameter has been seen
// (learned from the first PARAM_VALUE's param_count field), returning a
// name→value map built from the keep pool.
func (c *Connection) RequestParams(timeout time.Duration) (map[string]Value, error) {
	c.dispatch.setKeepAll("PARAM_VALUE", true)
	defer c.dispatch.setKeepAll("PARAM_VALUE", false)

	if err := c.Send("PARAM_REQUEST_LIST", map[string]Value{
		"target_system":    IntValue(int64(c.config.SystemID)),
		"target_component": IntValue(int64(c.config.ComponentID)),
	}); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)

	first, err := c.dispatch.waitFor("PARAM_VALUE", nil, time.Until(deadline))
	if err != nil {
		return nil, err
	}
	countVal, ok := first.Content["param_count"]
	if !ok {
		return nil, &DecodeError{Message: "PARAM_VALUE", Field: "param_count", Reason: "missing"}
	}
	count, _ := countVal.Int()

	for {
		seen := c.distinctParamIDs()
		if int64(len(seen)) >= count {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if _, err := c.dispatch.waitFor("PARAM_VALUE", nil, remaining); err != nil {
			return nil, err
		}
	}

	out := make(map[string]Value)
	for _, pkt := range c.dispatch.keptSnapshot("PARAM_VALUE") {
		id, ok := pkt.Content["param_id"]
		if !ok {
			continue
		}
		idText, _ := id.Text()
		out[idText] = pkt.Content["param_value"]
	}
	return out, nil
}

func (c *Connection) distinctParamIDs() map[string]struct{} {
	seen := make(map[string]struct{})
	for _, pkt := range c.dispatch.keptSnapshot("PARAM_VALUE") {
		if id, ok := pkt.Content["param_id"]; ok {
			if text, ok := id.Text(); ok {
				seen[text] = struct{}{}
			}
		}
	}
	return seen
}

// CommandLong sends COMMAND_LONG with up to 7 parameters (right-padded with
// zeros) and waits for a matching COMMAND_ACK, returning CommandError if
// the result was not MAV_RESULT_ACCEPTED.
func (c *Connection) CommandLong(command uint16, params ...float64) error {
	var p [7]float64
	copy(p[:], params)

	content, err := c.sendAndWaitTimeout(
		"COMMAND_LONG",
		map[string]Value{
			"target_system":    IntValue(int64(c.config.SystemID)),
			"target_component": IntValue(int64(c.config.ComponentID)),
			"command":          IntValue(int64(command)),
			"confirmation":     IntValue(0),
			"param1":           FloatValue(p[0]),
			"param2":           FloatValue(p[1]),
			"param3":           FloatValue(p[2]),
			"param4":           FloatValue(p[3]),
			"param5":           FloatValue(p[4]),
			"param6":           FloatValue(p[5]),
			"param7":           FloatValue(p[6]),
		},
		"COMMAND_ACK",
		map[string]Value{"command": IntValue(int64(command))},
		c.config.WaitTimeout,
	)
	if err != nil {
		return err
	}

	resultVal, ok := content["result"]
	if !ok {
		return &DecodeError{Message: "COMMAND_ACK", Field: "result", Reason: "missing"}
	}
	result, ok := enumInt(c.schema, "MAV_RESULT", resultVal)
	if !ok {
		return &DecodeError{Message: "COMMAND_ACK", Field: "result", Reason: "unresolvable result"}
	}
	if result != mavResultAccepted {
		return &CommandError{Command: command, Result: result}
	}
	return nil
}

// SetMessageInterval issues MAV_CMD_SET_MESSAGE_INTERVAL for msgID at the
// given period (0 disables streaming of that message).
func (c *Connection) SetMessageInterval(msgID uint32, period time.Duration) error {
	var intervalUs float64 = -1
	if period > 0 {
		intervalUs = float64(period.Microseconds())
	}
	return c.CommandLong(cmdSetMessageInterval, float64(msgID), intervalUs)
}

// MessageInterval issues MAV_CMD_REQUEST_MESSAGE for MESSAGE_INTERVAL and
// waits for the response, returning its reported interval in microseconds.
func (c *Connection) MessageInterval(msgID uint32) (float64, error) {
	content, err := c.sendAndWaitTimeout(
		"COMMAND_LONG",
		map[string]Value{
			"target_system":    IntValue(int64(c.config.SystemID)),
			"target_component": IntValue(int64(c.config.ComponentID)),
			"command":          IntValue(cmdRequestMessage),
			"confirmation":     IntValue(0),
			"param1":           FloatValue(float64(MessageIDForInterval)),
			"param2":           FloatValue(float64(msgID)),
			"param3":           FloatValue(0),
			"param4":           FloatValue(0),
			"param5":           FloatValue(0),
			"param6":           FloatValue(0),
			"param7":           FloatValue(0),
		},
		"MESSAGE_INTERVAL",
		map[string]Value{"message_id": IntValue(int64(msgID))},
		c.config.WaitTimeout,
	)
	if err != nil {
		return 0, err
	}
	iv, ok := content["interval_us"]
	if !ok {
		return 0, &DecodeError{Message: "MESSAGE_INTERVAL", Field: "interval_us", Reason: "missing"}
	}
	f, _ := iv.Float()
	return f, nil
}

// MessageIDForInterval is the MESSAGE_INTERVAL message's own numeric id,
// used as param1 of MAV_CMD_REQUEST_MESSAGE to ask for it specifically.
const MessageIDForInterval = 244
