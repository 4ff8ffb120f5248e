package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/keystroke"
	"mirrorgate/internal/store"
)

var hexFingerprint = regexp.MustCompile(`^[0-9a-f]{64}$`)

func testEnv() environment.Descriptor {
	return environment.Descriptor{
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64)",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		Timezone:     "Asia/Kolkata",
		Locale:       "en-US",
	}
}

func typedMetrics() keystroke.Metrics {
	start := time.UnixMilli(1700000000000)
	m := keystroke.Metrics{InputStart: start, FirstKeystroke: start, TotalDuration: 900 * time.Millisecond}
	for _, off := range []int{0, 180, 360, 530, 700, 860} {
		m.Keystrokes = append(m.Keystrokes, start.Add(time.Duration(off)*time.Millisecond))
	}
	return m
}

// =============================================================================
// Hasher
// =============================================================================

func TestPayloadLayout(t *testing.T) {
	got := Payload("21CS045", typedMetrics(), testEnv())
	assert.Equal(t, "21CS045|Mozilla/5.0 (X11; Linux x86_64)|1920x1080|Asia/Kolkata|900|6|1700000000000", got)
}

func TestPayloadAbsentFirstKeystroke(t *testing.T) {
	got := Payload("21CS045", keystroke.Metrics{}, environment.Descriptor{UserAgent: "ua"})
	assert.Equal(t, "21CS045|ua|0x0||0|0|0", got)
}

func TestPayloadFractionalDuration(t *testing.T) {
	m := keystroke.Metrics{TotalDuration: 860500 * time.Microsecond}
	assert.Contains(t, Payload("x", m, environment.Descriptor{}), "|860.5|")
}

func TestHashKnownVectors(t *testing.T) {
	ctx := context.Background()

	h, err := NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, DigestSHA256, h.Digest())
	fp, err := h.Hash(ctx, "21CS045", typedMetrics(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, "8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d", fp)

	h3, err := NewHasher("SHA3-256")
	require.NoError(t, err)
	fp3, err := h3.Hash(ctx, "21CS045", typedMetrics(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, "7eaaf15175cbbe9154fd373a74bcdddd38dfce9ff0426f2e29314fe728b3bc30", fp3)
	assert.Len(t, fp3, FingerprintLength)
}

func TestNewHasherUnknownDigest(t *testing.T) {
	_, err := NewHasher("md5")
	assert.ErrorIs(t, err, ErrUnknownDigest)
}

func TestHashCancelledContext(t *testing.T) {
	h, _ := NewHasher(DigestSHA256)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fp, err := h.Hash(ctx, "21CS045", typedMetrics(), testEnv())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fp)
}

func TestHashProperties(t *testing.T) {
	h, _ := NewHasher(DigestSHA256)
	ctx := context.Background()
	env := testEnv()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical inputs give identical fingerprints", prop.ForAll(
		func(id string, durMs int) bool {
			m := keystroke.Metrics{TotalDuration: time.Duration(durMs) * time.Millisecond}
			a, _ := h.Hash(ctx, id, m, env)
			b, _ := h.Hash(ctx, id, m, env)
			return a == b && hexFingerprint.MatchString(a)
		},
		gen.AlphaString(),
		gen.IntRange(0, 600000),
	))

	properties.Property("changing the identifier changes the fingerprint", prop.ForAll(
		func(id string) bool {
			m := typedMetrics()
			a, _ := h.Hash(ctx, id, m, env)
			b, _ := h.Hash(ctx, id+"X", m, env)
			return a != b
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// =============================================================================
// Record codec
// =============================================================================

func TestEncodeIsCanonical(t *testing.T) {
	r := Record{
		Identifier:      "21CS045",
		Fingerprint:     "8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d",
		DeviceSignature: "ua|1920x1080|en-US",
		CreatedAt:       time.UnixMilli(1700000000123),
	}
	got, err := Encode(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"createdAt":1700000000123,"deviceSignature":"ua|1920x1080|en-US","fingerprint":"8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d","identifier":"21CS045"}`,
		got)

	back, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, r.Identifier, back.Identifier)
	assert.Equal(t, r.Fingerprint, back.Fingerprint)
	assert.Equal(t, r.DeviceSignature, back.DeviceSignature)
	assert.True(t, r.CreatedAt.Equal(back.CreatedAt))
}

func TestEncodeRejectsBlankIdentifier(t *testing.T) {
	_, err := Encode(Record{Identifier: "  "})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestEncodeRejectsMissingCreationTime(t *testing.T) {
	_, err := Encode(Record{Identifier: "21CS045", DeviceSignature: "S"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = Encode(Record{Identifier: "21CS045", CreatedAt: time.UnixMilli(-1)})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	st := NewStore(store.NewMemory())
	require.ErrorIs(t, st.Save(context.Background(), Record{Identifier: "21CS045"}), ErrInvalidRecord)
	assert.Nil(t, st.Load(context.Background()))
}

func TestDecodeAcceptsPlaceholderFingerprint(t *testing.T) {
	r, err := Decode(`{"identifier":"A","fingerprint":"","deviceSignature":"S","createdAt":1}`)
	require.NoError(t, err)
	assert.Equal(t, "A", r.Identifier)
	assert.Empty(t, r.Fingerprint)
}

func TestDecodeUpgradesLegacyLayout(t *testing.T) {
	legacy := `{"rollNumber":"21CS045","hash":"8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d","deviceSignature":"S","timestamp":1700000000000}`
	r, err := Decode(legacy)
	require.NoError(t, err)
	assert.Equal(t, "21CS045", r.Identifier)
	assert.Equal(t, "8dada37fb7e8795f300ba66798b1377051aca8f43196084bf3e1247ec7a70f1d", r.Fingerprint)
	assert.Equal(t, "S", r.DeviceSignature)
	assert.Equal(t, int64(1700000000000), r.CreatedAt.UnixMilli())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{identifier:`},
		{"array", `[]`},
		{"missing fields", `{"identifier":"A"}`},
		{"empty identifier", `{"identifier":"","fingerprint":"","deviceSignature":"S","createdAt":1}`},
		{"uppercase fingerprint", `{"identifier":"A","fingerprint":"8DADA37FB7E8795F300BA66798B1377051ACA8F43196084BF3E1247EC7A70F1D","deviceSignature":"S","createdAt":1}`},
		{"short fingerprint", `{"identifier":"A","fingerprint":"abc","deviceSignature":"S","createdAt":1}`},
		{"negative createdAt", `{"identifier":"A","fingerprint":"","deviceSignature":"S","createdAt":-5}`},
		{"fractional createdAt", `{"identifier":"A","fingerprint":"","deviceSignature":"S","createdAt":1.5}`},
		{"mixed layouts", `{"identifier":"A","rollNumber":"B","fingerprint":"","hash":"","deviceSignature":"S","createdAt":1,"timestamp":1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

// =============================================================================
// Store
// =============================================================================

type failingBackend struct {
	store.Backend
	getErr error
	setErr error
}

func (f *failingBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Backend.Get(ctx, key)
}

func (f *failingBackend) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Backend.Set(ctx, key, value)
}

func TestStoreSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := NewStore(mem)

	assert.Nil(t, s.Load(ctx))

	r := Record{Identifier: "A", Fingerprint: "", DeviceSignature: "S", CreatedAt: time.UnixMilli(10)}
	require.NoError(t, s.Save(ctx, r))

	raw, ok, _ := mem.Get(ctx, DefaultKey)
	require.True(t, ok)
	assert.Contains(t, raw, `"identifier":"A"`)

	got := s.Load(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.Identifier)

	// Last write wins
	r.Identifier = "B"
	require.NoError(t, s.Save(ctx, r))
	assert.Equal(t, "B", s.Load(ctx).Identifier)

	require.NoError(t, s.Clear(ctx))
	assert.Nil(t, s.Load(ctx))
}

func TestStoreCustomKey(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := NewStore(mem, WithKey("kiosk-7"))

	require.NoError(t, s.Save(ctx, Record{Identifier: "A", DeviceSignature: "S", CreatedAt: time.UnixMilli(1)}))
	_, ok, _ := mem.Get(ctx, "kiosk-7")
	assert.True(t, ok)
	_, ok, _ = mem.Get(ctx, DefaultKey)
	assert.False(t, ok)
}

func TestStoreLoadFailsSoft(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Set(ctx, DefaultKey, "{not json")
		assert.Nil(t, NewStore(mem).Load(ctx))
	})

	t.Run("backend error", func(t *testing.T) {
		b := &failingBackend{Backend: store.NewMemory(), getErr: errors.New("quota exceeded")}
		assert.Nil(t, NewStore(b).Load(ctx))
	})

	t.Run("corrupt", func(t *testing.T) {
		b := &failingBackend{Backend: store.NewMemory(), getErr: store.ErrCorrupt}
		assert.Nil(t, NewStore(b).Load(ctx))
	})
}

func TestStoreSaveError(t *testing.T) {
	b := &failingBackend{Backend: store.NewMemory(), setErr: errors.New("quota exceeded")}
	err := NewStore(b).Save(context.Background(), Record{Identifier: "A", CreatedAt: time.UnixMilli(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)|1920x1080|en-US", Signature(testEnv()))

	other := testEnv()
	other.Locale = "de-DE"
	assert.NotEqual(t, Signature(testEnv()), Signature(other))

	// Timezone is not part of the device signature.
	moved := testEnv()
	moved.Timezone = "Europe/Berlin"
	assert.Equal(t, Signature(testEnv()), Signature(moved))
}

// =============================================================================
// Divergence
// =============================================================================

func TestCheck(t *testing.T) {
	stored := &Record{Identifier: "21CS045", DeviceSignature: "S"}

	tests := []struct {
		name      string
		submitted string
		stored    *Record
		want      Verdict
	}{
		{"no record", "21CS045", nil, None},
		{"same identifier", "21CS045", stored, Match},
		{"surrounding whitespace", "  21CS045\t", stored, Match},
		{"different identifier", "21CS046", stored, Mismatch},
		{"case preserved", "21cs045", stored, Mismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Check(tc.submitted, tc.stored))
		})
	}
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "match", Match.String())
	assert.Equal(t, "mismatch", Mismatch.String())
	assert.Equal(t, "unknown", Verdict(9).String())
}
