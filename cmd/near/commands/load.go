package commands

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/near"
)

// maxLine bounds one JSON lines record.
const maxLine = 16 << 20

type line struct {
	ID       near.ID         `json:"id"`
	Vector   []float32       `json:"vector"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// metadata returns a JSON string's contents and any other value verbatim.
func (l line) metadata() ([]byte, error) {
	raw := bytes.TrimSpace(l.Metadata)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return raw, nil
}

func newLoadCmd(g *globalFlags) *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "load <file.jsonl>",
		Short: "Insert records from a JSON lines file",
		Long: `Insert records from a JSON lines file, one record per line:

  {"id": 1, "vector": [0.1, 0.2], "metadata": "anything"}

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			ctx := cmd.Context()
			e, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			inserted, skipped, err := loadRecords(cmd, e.index, r, skipExisting)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, skipped %d, live %d\n", inserted, skipped, e.index.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip records whose id is already indexed")
	return cmd
}

func loadRecords(cmd *cobra.Command, idx near.Index, r io.Reader, skipExisting bool) (inserted, skipped int, err error) {
	ctx := cmd.Context()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for n := 1; sc.Scan(); n++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(text, &l); err != nil {
			return inserted, skipped, fmt.Errorf("line %d: %w", n, err)
		}
		md, err := l.metadata()
		if err != nil {
			return inserted, skipped, fmt.Errorf("line %d: metadata: %w", n, err)
		}

		err = idx.Insert(ctx, l.ID, l.Vector, md)
		switch {
		case err == nil:
			inserted++
		case skipExisting && errors.Is(err, near.ErrDuplicateID):
			skipped++
		default:
			return inserted, skipped, fmt.Errorf("line %d: %w", n, err)
		}
	}
	return inserted, skipped, sc.Err()
}
