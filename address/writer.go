package address

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Write renders addresses in the export format, one "<name>, <reference>"
// line per address.
func Write(w io.Writer, addrs []Address) error {
	bw := bufio.NewWriter(w)
	for _, a := range addrs {
		if _, err := fmt.Fprintf(bw, "%s, %s\n", a.Name, a.ReferenceAddress); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// WriteFile writes the export to path, creating or truncating it.
func WriteFile(path string, addrs []Address) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, addrs); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}

	return nil
}
