package mavlink

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Transport is the byte-stream contract the serial framer consumes. The
// concrete adapter (serial port, simulated pipe, test harness) is an
// external collaborator; this library only depends on the interface.
type Transport interface {
	io.Reader
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// SerialTransport adapts a go.bug.st/serial.Port to the Transport contract,
// grounded on the teacher's OpenSerialPort/Close/SetReadTimeout usage.
type SerialTransport struct {
	port serial.Port
}

// OpenSerial opens a serial port at the given baud rate, 8N1, and wraps it
// as a Transport.
func OpenSerial(name string, baud int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, &TransportError{Op: "open " + name, Err: err}
	}
	return &SerialTransport{port: port}, nil
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *SerialTransport) ReadByte() (byte, error) {
	var b [1]byte
	n, err := t.port.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("mavlink: short read")
	}
	return b[0], nil
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Flush() error {
	return t.port.ResetInputBuffer()
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

// ListSerialPorts lists available USB serial ports, grounded on the
// teacher's ListSerialPorts helper.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &TransportError{Op: "enumerate ports", Err: err}
	}
	return ports, nil
}
