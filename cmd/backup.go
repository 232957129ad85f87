package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mholt/archives"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/sync"
)

func newBackupCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the project directory to a tar.gz snapshot",
		Long: `Write a compressed snapshot of the project directory. Hidden
entries, .mgostignore matches and the .mgost state directory are left
out, so the archive holds exactly the files a sync pass would consider.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			root, err := projectRoot(v)
			if err != nil {
				return err
			}

			names, err := collectBackupFiles(root)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return fmt.Errorf("nothing to back up under %s", root)
			}

			output := v.GetString("output")
			if output == "" {
				output = fmt.Sprintf("%s-%s.tar.gz",
					filepath.Base(root), time.Now().Format("20060102-150405"))
			}

			files, err := archives.FilesFromDisk(ctx, nil, names)
			if err != nil {
				return err
			}
			out, err := os.Create(output)
			if err != nil {
				return err
			}
			defer out.Close()

			format := archives.CompressedArchive{
				Compression: archives.Gz{},
				Archival:    archives.Tar{},
			}
			if err := format.Archive(ctx, out, files); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			fmt.Printf("Wrote %s (%d file(s))\n", output, len(names))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "archive path (default: <dir>-<stamp>.tar.gz)")
	return cmd
}

// collectBackupFiles maps disk paths to archive paths, applying the
// same visibility rules the sync engine uses.
func collectBackupFiles(root string) (map[string]string, error) {
	ignore := sync.LoadIgnore(root)
	names := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if path != root && (hidden || ignore.Match(d.Name(), true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || ignore.Match(d.Name(), false) || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names[path] = filepath.ToSlash(rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
