package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

// TestBase64RoundTrip realizes invariant 3.
func TestBase64RoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("hello world"),
		{0x00, 0xff, 0x10, 0x20, 0x7f},
		bytes.Repeat([]byte{0xab}, 257),
	}
	for _, c := range cases {
		encoded := Base64Encode(c)
		decoded, err := Base64Decode(encoded)
		if err != nil {
			t.Fatalf("decode(%q): %v", encoded, err)
		}
		if !bytes.Equal(decoded, c) && !(len(decoded) == 0 && len(c) == 0) {
			t.Fatalf("round trip mismatch: got %v want %v", decoded, c)
		}
	}
}

func TestBase64DecodeRejectsInvalid(t *testing.T) {
	if _, err := Base64Decode("not valid base64!!"); err == nil {
		t.Fatal("expected error for invalid base64 input")
	}
}

// TestCBORJSONRoundTrip realizes invariant 4: cbor_to_json(json_to_cbor(j))
// equals j structurally.
func TestCBORJSONRoundTrip(t *testing.T) {
	cases := []string{
		`{"a":1,"b":"two","c":[1,2,3],"d":true,"e":null}`,
		`{"nested":{"x":-5,"y":3.5}}`,
		`[1,2,3]`,
		`"just a string"`,
		`42`,
		`-17`,
		`3.14159`,
		`{}`,
		`[]`,
	}
	for _, in := range cases {
		cborBytes, err := JSONToCBOR([]byte(in))
		if err != nil {
			t.Fatalf("JSONToCBOR(%s): %v", in, err)
		}
		out, err := CBORToJSON(cborBytes)
		if err != nil {
			t.Fatalf("CBORToJSON: %v", err)
		}

		var wantVal, gotVal any
		if err := json.Unmarshal([]byte(in), &wantVal); err != nil {
			t.Fatalf("unmarshal want: %v", err)
		}
		if err := json.Unmarshal(out, &gotVal); err != nil {
			t.Fatalf("unmarshal got %s: %v", out, err)
		}
		wantNorm, _ := json.Marshal(wantVal)
		gotNorm, _ := json.Marshal(gotVal)
		if !bytes.Equal(wantNorm, gotNorm) {
			t.Fatalf("round trip mismatch: got %s want %s", gotNorm, wantNorm)
		}
	}
}

func TestCBORJSONNegativeIntegerConvention(t *testing.T) {
	c, err := JSONToCBOR([]byte(`-1`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := CBORToJSON(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "-1" {
		t.Fatalf("got %s want -1", out)
	}
}
