package mavlink

import (
	"testing"
	"time"
)

// serveOnce reads a single packet matching wantName off serverSide and
// hands it to respond, which builds and writes the reply frame. Any
// packet for a different message is silently dropped (mirrors a vehicle
// ignoring requests it doesn't recognise).
func serveOnce(t *testing.T, schema *Schema, serverSide *pipeTransport, wantName string, respond func(req *Packet) []byte) {
	t.Helper()
	fr := newFramer(schema, serverSide, testLogger())
	go func() {
		for {
			pkt, err := fr.next()
			if err != nil {
				return
			}
			if pkt.Message.Name != wantName {
				continue
			}
			reply := respond(pkt)
			if reply != nil {
				serverSide.Write(reply)
			}
			return
		}
	}()
}

func TestRequestsParamValue(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	serveOnce(t, schema, serverSide, "PARAM_REQUEST_READ", func(req *Packet) []byte {
		frame, err := EncodeV1(schema, schema.Messages["PARAM_VALUE"], 0, 1, 1, map[string]Value{
			"param_id":    TextValue("THR_MAX"),
			"param_value": FloatValue(0.8),
			"param_type":  IntValue(9),
			"param_count": IntValue(1),
			"param_index": IntValue(0),
		})
		if err != nil {
			t.Errorf("EncodeV1: %v", err)
		}
		return frame
	})

	content, err := conn.ParamValue("THR_MAX")
	if err != nil {
		t.Fatalf("ParamValue: %v", err)
	}
	// param_value is a float32 on the wire, so 0.8 comes back float32-rounded.
	v, ok := content["param_value"].Float()
	if want := float64(float32(0.8)); !ok || v != want {
		t.Errorf("param_value = (%v, %v), want (%v, true)", v, ok, want)
	}
}

func TestRequestsParamValueTimesOut(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 30 * time.Millisecond})
	go conn.Run()
	defer conn.Close()

	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	_, err := conn.ParamValue("NOBODY_HOME")
	if _, ok := err.(*FailedToGetParamError); !ok {
		t.Fatalf("err = %v (%T), want *FailedToGetParamError", err, err)
	}
}

func TestRequestsSetParamUsesCachedType(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	// Pre-seed the cache directly so SetParam does not need to fetch the
	// type first.
	conn.dispatch.dispatch(&Packet{
		Message: schema.Messages["PARAM_VALUE"],
		Content: map[string]Value{
			"param_id":   TextValue("THR_MAX"),
			"param_type": IntValue(9),
		},
	})

	serveOnce(t, schema, serverSide, "PARAM_SET", func(req *Packet) []byte {
		v, _ := req.Content["param_value"].Float()
		frame, err := EncodeV1(schema, schema.Messages["PARAM_VALUE"], 0, 1, 1, map[string]Value{
			"param_id":    TextValue("THR_MAX"),
			"param_value": FloatValue(v),
			"param_type":  IntValue(9),
			"param_count": IntValue(1),
			"param_index": IntValue(0),
		})
		if err != nil {
			t.Errorf("EncodeV1: %v", err)
		}
		return frame
	})

	content, err := conn.SetParam("THR_MAX", FloatValue(0.5))
	if err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	v, _ := content["param_value"].Float()
	if v != 0.5 {
		t.Errorf("param_value = %v, want 0.5", v)
	}
}

func TestRequestsSetParamFetchesTypeWhenUncached(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	fr := newFramer(schema, serverSide, testLogger())
	go func() {
		// First request: PARAM_REQUEST_READ, to learn the type.
		pkt, err := fr.next()
		if err != nil || pkt.Message.Name != "PARAM_REQUEST_READ" {
			return
		}
		frame, err := EncodeV1(schema, schema.Messages["PARAM_VALUE"], 0, 1, 1, map[string]Value{
			"param_id":    TextValue("THR_MAX"),
			"param_value": FloatValue(0.8),
			"param_type":  IntValue(9),
			"param_count": IntValue(1),
			"param_index": IntValue(0),
		})
		if err != nil {
			return
		}
		serverSide.Write(frame)

		// Second request: PARAM_SET, echoed back as confirmation.
		pkt, err = fr.next()
		if err != nil || pkt.Message.Name != "PARAM_SET" {
			return
		}
		v, _ := pkt.Content["param_value"].Float()
		frame, err = EncodeV1(schema, schema.Messages["PARAM_VALUE"], 0, 1, 1, map[string]Value{
			"param_id":    TextValue("THR_MAX"),
			"param_value": FloatValue(v),
			"param_type":  IntValue(9),
			"param_count": IntValue(1),
			"param_index": IntValue(0),
		})
		if err != nil {
			return
		}
		serverSide.Write(frame)
	}()

	content, err := conn.SetParam("THR_MAX", FloatValue(0.6))
	if err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	v, _ := content["param_value"].Float()
	if want := float64(float32(0.6)); v != want {
		t.Errorf("param_value = %v, want %v", v, want)
	}
}

func TestRequestsRequestParams(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	fr := newFramer(schema, serverSide, testLogger())
	go func() {
		pkt, err := fr.next()
		if err != nil || pkt.Message.Name != "PARAM_REQUEST_LIST" {
			return
		}
		params := []struct {
			id  string
			val float64
		}{
			{"THR_MAX", 0.8},
			{"THR_MIN", 0.1},
		}
		for i, p := range params {
			frame, err := EncodeV1(schema, schema.Messages["PARAM_VALUE"], 0, 1, 1, map[string]Value{
				"param_id":    TextValue(p.id),
				"param_value": FloatValue(p.val),
				"param_type":  IntValue(9),
				"param_count": IntValue(int64(len(params))),
				"param_index": IntValue(int64(i)),
			})
			if err != nil {
				return
			}
			serverSide.Write(frame)
		}
	}()

	params, err := conn.RequestParams(2 * time.Second)
	if err != nil {
		t.Fatalf("RequestParams: %v", err)
	}
	if len(params) != 2 {
		t.Fatalf("got %d params, want 2: %+v", len(params), params)
	}
	if v, ok := params["THR_MAX"].Float(); !ok || v != float64(float32(0.8)) {
		t.Errorf("THR_MAX = (%v, %v), want (%v, true)", v, ok, float64(float32(0.8)))
	}
	if v, ok := params["THR_MIN"].Float(); !ok || v != float64(float32(0.1)) {
		t.Errorf("THR_MIN = (%v, %v), want (%v, true)", v, ok, float64(float32(0.1)))
	}
}

func TestRequestsSetMessageInterval(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	serveOnce(t, schema, serverSide, "COMMAND_LONG", func(req *Packet) []byte {
		cmd, _ := enumInt(schema, "MAV_CMD", req.Content["command"])
		frame, err := EncodeV1(schema, schema.Messages["COMMAND_ACK"], 0, 1, 1, map[string]Value{
			"command": IntValue(cmd),
			"result":  IntValue(0),
		})
		if err != nil {
			t.Errorf("EncodeV1: %v", err)
		}
		return frame
	})

	if err := conn.SetMessageInterval(30, 100*time.Millisecond); err != nil {
		t.Fatalf("SetMessageInterval: %v", err)
	}
}

func TestRequestsMessageInterval(t *testing.T) {
	schema := loadTestSchema(t)
	clientSide, serverSide := newLoopback()
	defer clientSide.Close()
	defer serverSide.Close()

	conn := NewConnection(schema, clientSide, Config{Logger: testLogger(), WaitTimeout: 2 * time.Second})
	go conn.Run()
	defer conn.Close()

	serveOnce(t, schema, serverSide, "COMMAND_LONG", func(req *Packet) []byte {
		frame, err := EncodeV1(schema, schema.Messages["MESSAGE_INTERVAL"], 0, 1, 1, map[string]Value{
			"interval_us": IntValue(200000),
			"message_id":  IntValue(30),
		})
		if err != nil {
			t.Errorf("EncodeV1: %v", err)
		}
		return frame
	})

	interval, err := conn.MessageInterval(30)
	if err != nil {
		t.Fatalf("MessageInterval: %v", err)
	}
	if interval != 200000 {
		t.Errorf("interval = %v, want 200000", interval)
	}
}
