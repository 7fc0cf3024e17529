package data

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"advbnn/utils"
)

const (
	idxUnsignedByte = 0x08
	idxImageDims    = 3
	idxLabelDims    = 1
)

// openIDX opens path, or path+".gz" when only the compressed file exists.
func openIDX(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	gzf, gerr := os.Open(path + ".gz")
	if gerr != nil {
		if errors.Is(gerr, os.ErrNotExist) {
			return nil, fmt.Errorf("%s(.gz): %w", path, utils.ErrMissingArtifact)
		}
		return nil, gerr
	}
	zr, err := gzip.NewReader(bufio.NewReader(gzf))
	if err != nil {
		gzf.Close()
		return nil, fmt.Errorf("%s.gz: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	return &gzipFile{Reader: zr, f: gzf}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// readIDX decodes an unsigned-byte IDX file with the expected number of dimensions.
func readIDX(path string, wantDims int) (dims []int, values []byte, err error) {
	rc, err := openIDX(path)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	r := bufio.NewReader(rc)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("%s: reading header: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	if magic[0] != 0 || magic[1] != 0 || magic[2] != idxUnsignedByte || int(magic[3]) != wantDims {
		return nil, nil, fmt.Errorf("%s: unexpected IDX magic %x: %w", path, magic, utils.ErrSchemaMismatch)
	}
	dims = make([]int, wantDims)
	total := 1
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, nil, fmt.Errorf("%s: reading dims: %v: %w", path, err, utils.ErrSchemaMismatch)
		}
		dims[i] = int(d)
		total *= int(d)
	}
	values = make([]byte, total)
	if _, err := io.ReadFull(r, values); err != nil {
		return nil, nil, fmt.Errorf("%s: truncated body: %v: %w", path, err, utils.ErrSchemaMismatch)
	}
	return dims, values, nil
}
