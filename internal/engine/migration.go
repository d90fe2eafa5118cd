package engine

import "fmt"

// Migrate copies every table of src into the same-named store of dst,
// keeping ids and timestamps. This works for:
// - converting a data directory between formats (csv -> xlsx, ...)
// - taking a backup into a second directory
func Migrate(src, dst *Registry) error {
	for _, name := range src.Names() {
		from, err := src.Lookup(name)
		if err != nil {
			return err
		}
		to, err := dst.Lookup(name)
		if err != nil {
			return fmt.Errorf("destination cannot hold %s: %w", name, err)
		}

		t, err := from.Read()
		if err != nil {
			return fmt.Errorf("failed to dump %s: %w", name, err)
		}
		if err := to.Write(t); err != nil {
			return fmt.Errorf("failed to write %s to destination: %w", name, err)
		}
	}
	return nil
}
