package ledgerhash_test

import (
	"bytes"
	"testing"

	"github.com/chittyos/chittychain/internal/ledgerhash"
)

func TestSumDiffersByAlgorithm(t *testing.T) {
	data := []byte("evidence payload")
	sha256Sum := ledgerhash.Sum(ledgerhash.AlgorithmSHA256, data)
	sha3Sum := ledgerhash.Sum(ledgerhash.AlgorithmSHA3_256, data)
	if bytes.Equal(sha256Sum, sha3Sum) {
		t.Fatalf("expected sha256 and sha3-256 digests to differ")
	}
	if len(sha256Sum) != 32 || len(sha3Sum) != 32 {
		t.Fatalf("expected 32-byte digests, got %d and %d", len(sha256Sum), len(sha3Sum))
	}
}

func TestSumPanicsOnUnknownAlgorithm(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unrecognized algorithm")
		}
	}()
	ledgerhash.Sum(ledgerhash.AlgorithmUnspecified, []byte("x"))
}

func TestEncodeIsOrderIndependent(t *testing.T) {
	a := ledgerhash.Encode(ledgerhash.Fields{"b": []byte("2"), "a": []byte("1")})
	b := ledgerhash.Encode(ledgerhash.Fields{"a": []byte("1"), "b": []byte("2")})
	if !bytes.Equal(a, b) {
		t.Fatalf("expected Encode to be independent of map iteration order")
	}
}

func TestEncodeDistinguishesFieldBoundaries(t *testing.T) {
	// Without length framing, {"ab":"c"} could collide with
	// {"a":"bc"}; Encode must keep them distinct.
	first := ledgerhash.Encode(ledgerhash.Fields{"ab": []byte("c")})
	second := ledgerhash.Encode(ledgerhash.Fields{"a": []byte("bc")})
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct encodings for different field splits")
	}
}

func TestEncodeStrings(t *testing.T) {
	got := ledgerhash.EncodeStrings(map[string]string{"k": "v"})
	want := ledgerhash.Encode(ledgerhash.Fields{"k": []byte("v")})
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeStrings diverged from Encode")
	}
}
