package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 4-element array
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
// Returns the payload bytes (element 2)
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	coseArray, err := decodeCOSEArray(coseBytes)
	if err != nil {
		return nil, err
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}

	return payload, nil
}

// COSESign1Parts holds the raw elements of an untagged COSE_Sign1 message.
type COSESign1Parts struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// SplitCOSESign1 returns the protected header, payload and signature of a COSE_Sign1 array.
func SplitCOSESign1(coseBytes []byte) (*COSESign1Parts, error) {
	coseArray, err := decodeCOSEArray(coseBytes)
	if err != nil {
		return nil, err
	}

	protected, ok := coseArray[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid protected headers")
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload")
	}
	signature, ok := coseArray[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid signature")
	}

	return &COSESign1Parts{Protected: protected, Payload: payload, Signature: signature}, nil
}

func decodeCOSEArray(coseBytes []byte) ([]any, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	return coseArray, nil
}
