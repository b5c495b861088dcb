package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/binary"
)

const locateDesc = `
Print the path of a working ffmpeg.

The configured ffmpeg.path is tried first, then the bundled install, then
the system search path. Nothing is downloaded.
`

func newLocateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "print the path of a working ffmpeg",
		Long:  locateDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, func(ctx context.Context, a *app) error {
				path, err := a.manager.Locate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(o.out, path)
				return nil
			})
		},
	}
}

const installDesc = `
Download and install ffmpeg into the ffdep storage directory.

An existing install is kept unless --force is given. On Apple Silicon,
Homebrew is offered before any download.
`

func newInstallCmd(o *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "install ffmpeg",
		Long:  installDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, func(ctx context.Context, a *app) error {
				if !a.manager.Acquire(ctx, force) {
					return errReported
				}
				fmt.Fprintln(o.out, a.manager.CachedPath())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if ffmpeg is already installed")

	return cmd
}

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print ffdep and ffmpeg versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, func(ctx context.Context, a *app) error {
				fmt.Fprintf(o.out, "ffdep %s\n", Version)
				fmt.Fprintf(o.out, "ffmpeg %s\n", a.manager.ProbeVersion(ctx))
				return nil
			})
		},
	}
}

const ensureDesc = `
Locate ffmpeg, installing it when it is missing.

With ffmpeg.autoInstall set the install starts without asking; --yes
accepts the prompt.
`

func newEnsureCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "locate ffmpeg, installing it if needed",
		Long:  ensureDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, func(ctx context.Context, a *app) error {
				path, err := ensure(ctx, a)
				if err != nil {
					return err
				}
				fmt.Fprintln(o.out, path)
				return nil
			})
		},
	}
}

func ensure(ctx context.Context, a *app) (string, error) {
	path, err := a.manager.Ensure(ctx)
	if err != nil && !errors.Is(err, binary.ErrNotFound) {
		return "", errReported
	}
	return path, err
}

func newCatalogCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "list the download catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, func(_ context.Context, a *app) error {
				fmt.Fprintln(o.out, catalogTable(a.catalog, a.info.Key()))
				return nil
			})
		},
	}
}

// catalogTable renders every entry; current marks this machine's key.
func catalogTable(c *binary.Catalog, current string) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("", "PLATFORM", "ARCHIVE", "VERIFY", "URL")
	for _, key := range c.Keys() {
		d, _ := c.Lookup(key)
		marker := ""
		if key == current {
			marker = "*"
		}
		table.AddRow(marker, key, d.ArchiveName, verifyLabel(d), d.URL)
	}
	return table
}

func verifyLabel(d binary.Descriptor) string {
	switch {
	case d.SignatureURL != "" && d.ChecksumURL != "":
		return "gpg+sha256"
	case d.SignatureURL != "":
		return "gpg"
	case d.ChecksumURL != "":
		return "sha256"
	default:
		return "none"
	}
}
