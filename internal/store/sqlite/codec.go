package sqlite

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Body encodings recorded per row so option changes never strand old data.
const (
	encodingIdentity = "identity"
	encodingZstd     = "zstd"
	encodingAge      = "age"
)

// bodies smaller than this are stored uncompressed.
const minCompressSize = 512

// Sealer encrypts bodies at rest. secrets.AgeEncryptor satisfies it.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Option configures a DB.
type Option func(*options)

type options struct {
	compress bool
	sealer   Sealer
}

func defaultOptions() options {
	return options{compress: true}
}

// WithCompression toggles zstd compression of stored bodies.
func WithCompression(on bool) Option {
	return func(o *options) { o.compress = on }
}

// WithSealer encrypts stored bodies with s.
func WithSealer(s Sealer) Option {
	return func(o *options) { o.sealer = s }
}

type codec struct {
	compress bool
	sealer   Sealer
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newCodec(o options) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{compress: o.compress, sealer: o.sealer, enc: enc, dec: dec}, nil
}

// encode returns the stored form of body and its encoding label, e.g.
// "zstd+age".
func (c *codec) encode(body []byte) ([]byte, string, error) {
	data := body
	var steps []string
	if c.compress && len(body) >= minCompressSize {
		data = c.enc.EncodeAll(body, make([]byte, 0, len(body)/2))
		steps = append(steps, encodingZstd)
	}
	if c.sealer != nil {
		sealed, err := c.sealer.Encrypt(data)
		if err != nil {
			return nil, "", fmt.Errorf("seal body: %w", err)
		}
		data = sealed
		steps = append(steps, encodingAge)
	}
	if data == nil {
		data = []byte{}
	}
	if len(steps) == 0 {
		return data, encodingIdentity, nil
	}
	return data, strings.Join(steps, "+"), nil
}

// decode reverses encode using the recorded encoding label.
func (c *codec) decode(data []byte, encoding string) ([]byte, error) {
	if encoding == "" || encoding == encodingIdentity {
		return data, nil
	}
	steps := strings.Split(encoding, "+")
	for i := len(steps) - 1; i >= 0; i-- {
		switch steps[i] {
		case encodingAge:
			if c.sealer == nil {
				return nil, fmt.Errorf("body is sealed but no key is configured")
			}
			plain, err := c.sealer.Decrypt(data)
			if err != nil {
				return nil, fmt.Errorf("open sealed body: %w", err)
			}
			data = plain
		case encodingZstd:
			out, err := c.dec.DecodeAll(data, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress body: %w", err)
			}
			data = out
		default:
			return nil, fmt.Errorf("unknown body encoding %q", steps[i])
		}
	}
	return data, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
