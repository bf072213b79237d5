package bundle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a checkpoint container.
type Format int

// Supported formats.
const (
	FormatTorch Format = iota
	FormatSafeTensors
)

func (f Format) String() string {
	switch f {
	case FormatTorch:
		return "torch"
	case FormatSafeTensors:
		return "safetensors"
	default:
		return "unknown"
	}
}

var zipMagic = []byte("PK\x03\x04")

// pickleProto is the opcode opening a pickle stream of protocol 2 or later.
const pickleProto = 0x80

// DetectFormat picks the decoder for path from its extension, falling back
// to the leading bytes of the file.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return FormatSafeTensors, nil
	case ".pt", ".pth", ".ckpt":
		return FormatTorch, nil
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	head = head[:n]

	if bytes.HasPrefix(head, zipMagic) || (n > 0 && head[0] == pickleProto) {
		return FormatTorch, nil
	}
	return FormatSafeTensors, nil
}

// Load decodes the checkpoint at path.
func Load(path string) (*Bundle, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatTorch:
		return LoadTorch(path)
	default:
		return LoadSafeTensors(path)
	}
}
