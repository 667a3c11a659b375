package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Method identifies a remote operation.
type Method uint8

const (
	MethodGetChargingEnabled Method = 1
	MethodSetChargingEnabled Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodGetChargingEnabled:
		return "getChargingEnabled"
	case MethodSetChargingEnabled:
		return "setChargingEnabled"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// Status is the outcome of a call.
type Status uint8

const (
	StatusOK                   Status = 0
	StatusUnsupportedOperation Status = 1
	StatusIllegalState         Status = 2
	// StatusBadRequest covers undecodable requests, unknown methods and
	// missing arguments.
	StatusBadRequest Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusUnsupportedOperation:
		return "UNSUPPORTED_OPERATION"
	case StatusIllegalState:
		return "ILLEGAL_STATE"
	case StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return "UNKNOWN"
	}
}

type Request struct {
	ID      uint32 `cbor:"1,keyasint"`
	Method  Method `cbor:"2,keyasint"`
	Enabled *bool  `cbor:"3,keyasint,omitempty"`
}

type Response struct {
	ID      uint32 `cbor:"1,keyasint"`
	Status  Status `cbor:"2,keyasint"`
	Enabled *bool  `cbor:"3,keyasint,omitempty"`
	Detail  string `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("rpc: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("rpc: cbor decoder mode: %v", err))
	}
}

func EncodeRequest(req *Request) ([]byte, error) {
	return encMode.Marshal(req)
}

func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

func EncodeResponse(resp *Response) ([]byte, error) {
	return encMode.Marshal(resp)
}

func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
