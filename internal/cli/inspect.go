package cli

import (
	"cmp"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mawneychat/pkg/store/keys"
)

// KindStats aggregates the keys of one kind.
type KindStats struct {
	Kind   keys.KeyKind `json:"kind"`
	Keys   int          `json:"keys"`
	Owners int          `json:"owners"`
	Bytes  uint64       `json:"bytes"`
}

// Inventory is the result of an offline store scan.
type Inventory struct {
	Path  string      `json:"path"`
	Total int         `json:"total"`
	Kinds []KindStats `json:"kinds"`
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <db-path>",
		Short: "Summarise a local store; the daemon must be stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := inspectStore(args[0])
			if err != nil {
				return err
			}
			return render(opts.out, opts.output, inv, func(w *tabwriter.Writer) {
				row(w, "KIND", "KEYS", "OWNERS", "SIZE")
				for _, k := range inv.Kinds {
					row(w, k.Kind, k.Keys, k.Owners, humanize.Bytes(k.Bytes))
				}
				row(w, "total", inv.Total, "", "")
			})
		},
	}
}

// inspectStore opens the pebble store at path read-only and counts its
// keys per kind.
func inspectStore(path string) (*Inventory, error) {
	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	stats := map[keys.KeyKind]*KindStats{}
	owners := map[keys.KeyKind]map[string]struct{}{}
	inv := &Inventory{Path: path}
	for iter.First(); iter.Valid(); iter.Next() {
		pk := keys.ParseKey(string(iter.Key()))
		st, ok := stats[pk.Kind]
		if !ok {
			st = &KindStats{Kind: pk.Kind}
			stats[pk.Kind] = st
			owners[pk.Kind] = map[string]struct{}{}
		}
		st.Keys++
		st.Bytes += uint64(len(iter.Key()) + len(iter.Value()))
		if pk.ID != "" {
			owners[pk.Kind][pk.ID] = struct{}{}
		}
		inv.Total++
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	for kind, st := range stats {
		st.Owners = len(owners[kind])
		inv.Kinds = append(inv.Kinds, *st)
	}
	slices.SortFunc(inv.Kinds, func(a, b KindStats) int { return cmp.Compare(a.Kind, b.Kind) })
	return inv, nil
}
