package qrcode

import (
	"errors"
	"fmt"
	"io"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	ContentType = "image/png"
	defaultSize = 256
)

// Encoder renders text as a PNG QR code.
type Encoder struct {
	size  int
	level goqrcode.RecoveryLevel
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = defaultSize
	}
	return &Encoder{size: size, level: goqrcode.Medium}
}

func (e *Encoder) ContentType() string {
	return ContentType
}

// Encode builds the symbol first and only then writes to w, so an encoding
// failure never leaves a partial image on the wire.
func (e *Encoder) Encode(w io.Writer, content string) error {
	if content == "" {
		return errors.New("qr content is empty")
	}
	code, err := goqrcode.New(content, e.level)
	if err != nil {
		return fmt.Errorf("build qr code: %w", err)
	}
	png, err := code.PNG(e.size)
	if err != nil {
		return fmt.Errorf("render qr png: %w", err)
	}
	_, err = w.Write(png)
	return err
}
