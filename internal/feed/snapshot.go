package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	model "train-positions/internal/gtfs"
)

// WriteSnapshot encodes the feed as compact JSON.
func WriteSnapshot(w io.Writer, f *model.Feed) error {
	return json.NewEncoder(w).Encode(f)
}

// WriteSnapshotFile writes through a temporary file and renames it into place.
func WriteSnapshotFile(path string, f *model.Feed) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	b := bufio.NewWriter(out)
	if err := WriteSnapshot(b, f); err != nil {
		out.Close()
		return err
	}
	if err := b.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(r io.Reader) (*model.Feed, error) {
	var f model.Feed
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &f, nil
}

func ReadSnapshotFile(path string) (*model.Feed, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer in.Close()
	return ReadSnapshot(in)
}
