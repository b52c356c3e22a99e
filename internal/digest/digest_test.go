package digest_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jmerrifield20/powchain/internal/digest"
)

func TestHash_knownVectors(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{
			"two blocks",
			"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
			"248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1",
		},
		{"million a", strings.Repeat("a", 1_000_000), "cdc76e5c9914fb9281a1c7e284d73e67f1809a48a497200e046d39ccc7112cd0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := digest.Hash([]byte(tt.msg)); got != tt.want {
				t.Errorf("Hash(%q): got %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestSum_matchesStdlibAcrossPaddingBoundaries(t *testing.T) {
	for n := 0; n <= 300; n++ {
		msg := make([]byte, n)
		for i := range msg {
			msg[i] = byte(i*7 + n)
		}
		want := sha256.Sum256(msg)
		got := digest.Sum(msg)
		if got != digest.Digest(want) {
			t.Fatalf("length %d: got %s, want %s", n, got, hex.EncodeToString(want[:]))
		}
	}
}

func TestNew_streamingMatchesOneShot(t *testing.T) {
	msg := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20))
	want := digest.Sum(msg)

	for _, chunk := range []int{1, 3, 55, 56, 63, 64, 65, 128, len(msg)} {
		h := digest.New()
		for i := 0; i < len(msg); i += chunk {
			end := i + chunk
			if end > len(msg) {
				end = len(msg)
			}
			h.Write(msg[i:end])
		}
		var got digest.Digest
		copy(got[:], h.Sum(nil))
		if got != want {
			t.Errorf("chunk %d: got %s, want %s", chunk, got, want)
		}
	}
}

func TestNew_sumDoesNotDisturbState(t *testing.T) {
	h := digest.New()
	h.Write([]byte("ab"))
	_ = h.Sum(nil)
	h.Write([]byte("c"))

	if got := hex.EncodeToString(h.Sum(nil)); got != digest.Hash([]byte("abc")) {
		t.Errorf("Sum mid-stream changed state: got %s", got)
	}

	h.Reset()
	if got := hex.EncodeToString(h.Sum(nil)); got != digest.Hash(nil) {
		t.Errorf("after Reset: got %s, want empty digest", got)
	}
	if h.Size() != digest.Size || h.BlockSize() != digest.BlockSize {
		t.Errorf("Size/BlockSize: got %d/%d", h.Size(), h.BlockSize())
	}
}

func TestSum_deterministicAndDistinct(t *testing.T) {
	a := digest.SumString("Alice")
	if a != digest.SumString("Alice") {
		t.Error("repeated Sum calls disagree")
	}
	if a == digest.SumString("alice") {
		t.Error("distinct inputs produced the same digest")
	}
}

func TestSum_concurrentCallsAgree(t *testing.T) {
	want := digest.SumString("concurrent")

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := digest.SumString("concurrent"); got != want {
				errs <- got.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("concurrent Sum: got %s, want %s", got, want)
	}
}

func TestZero(t *testing.T) {
	if digest.Zero.String() != strings.Repeat("0", 64) {
		t.Errorf("Zero: got %s", digest.Zero)
	}
	if !digest.Zero.IsZero() {
		t.Error("Zero.IsZero() should be true")
	}
	if digest.SumString("").IsZero() {
		t.Error("empty-string digest must not be the zero sentinel")
	}
}

func TestParse(t *testing.T) {
	d := digest.SumString("abc")

	got, err := digest.Parse(d.String())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got != d {
		t.Errorf("Parse round trip: got %s, want %s", got, d)
	}

	bad := []string{
		"",
		"abc",
		strings.Repeat("0", 63),
		strings.Repeat("0", 65),
		strings.Repeat("g", 64),
	}
	for _, s := range bad {
		if _, err := digest.Parse(s); !errors.Is(err, digest.ErrMalformed) {
			t.Errorf("Parse(%q): got %v, want ErrMalformed", s, err)
		}
	}
}

func TestDigest_JSON(t *testing.T) {
	type wrapper struct {
		Root digest.Digest `json:"root"`
	}
	in := wrapper{Root: digest.SumString("abc")}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), in.Root.String()) {
		t.Errorf("JSON does not carry hex digest: %s", b)
	}

	var out wrapper
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Root != in.Root {
		t.Errorf("JSON round trip: got %s, want %s", out.Root, in.Root)
	}

	if err := json.Unmarshal([]byte(`{"root":"xyz"}`), &out); err == nil {
		t.Error("expected error for malformed digest in JSON")
	}
}
