package main

import (
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/communityfood/discovery-engine/internal/model"
)

var tombstoneCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "Manage blocklisted addresses",
}

var tombstoneImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tombstoned addresses from a YAML file",
	Long: `Reads a YAML file of the form

  tombstones:
    - address: 123 Main St
      reason: permanently closed

and adds each address to the blocklist. Existing entries are left untouched.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "tombstone import: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		tombstones, err := parseTombstones(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.InsertTombstones(ctx, tombstones)
		if err != nil {
			return eris.Wrap(err, "tombstone import")
		}

		zap.L().Info("tombstones imported",
			zap.String("file", path),
			zap.Int("read", len(tombstones)),
			zap.Int64("inserted", n),
		)
		return nil
	},
}

func init() {
	tombstoneImportCmd.Flags().String("file", "", "path to the YAML file (required)")
	_ = tombstoneImportCmd.MarkFlagRequired("file")

	tombstoneCmd.AddCommand(tombstoneImportCmd)
	rootCmd.AddCommand(tombstoneCmd)
}

type tombstoneFile struct {
	Tombstones []model.Tombstone `yaml:"tombstones"`
}

// parseTombstones decodes a tombstone file. Entries without an address are
// rejected.
func parseTombstones(r io.Reader) ([]model.Tombstone, error) {
	var file tombstoneFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "tombstone import: decode yaml")
	}
	for i, t := range file.Tombstones {
		if t.Address == "" {
			return nil, eris.Errorf("tombstone import: entry %d has no address", i+1)
		}
	}
	return file.Tombstones, nil
}
