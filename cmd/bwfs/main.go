package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/bwfs/bwfs/bwfuse"
	"github.com/bwfs/bwfs/common"
	"github.com/bwfs/bwfs/config"
	"github.com/bwfs/bwfs/disk"
	"github.com/bwfs/bwfs/fs"
	"github.com/bwfs/bwfs/fsck"
	"github.com/bwfs/bwfs/util"
)

func main() {
	conf, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}
	util.Debug = conf.Debug

	app := cli.App{
		Name:        "bwfs",
		Usage:       "a filesystem stored as bitmap images",
		Description: "bwfs volumes keep every block as a plain PBM image",
		Commands: []*cli.Command{{
			Name:      "mkfs",
			Aliases:   []string{"init"},
			Usage:     "create a new empty volume",
			ArgsUsage: "VOLUME",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "blocks",
					Usage: "number of blocks in the volume",
					Value: conf.TotalBlocks,
				},
				&cli.StringFlag{
					Name:  "layout",
					Usage: "volume layout: dir (one image file per block) or blob (a single file)",
					Value: string(conf.Layout),
				},
			},
			Action: func(ctx *cli.Context) error {
				path, err := arg(ctx, 0, "VOLUME")
				if err != nil {
					return err
				}
				return mkfs(path, disk.Layout(ctx.String("layout")), ctx.Uint64("blocks"))
			},
		}, {
			Name:        "fsck",
			Aliases:     []string{"check"},
			Usage:       "check a volume",
			ArgsUsage:   "VOLUME",
			Description: "print the superblock, the used blocks and inodes, and any inconsistencies",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "strict",
					Usage: "exit non-zero on any inconsistency, not only a corrupt superblock",
				},
			},
			Action: func(ctx *cli.Context) error {
				path, err := arg(ctx, 0, "VOLUME")
				if err != nil {
					return err
				}
				return check(path, ctx.Bool("strict"))
			},
		}, {
			Name:        "mount",
			Usage:       "mount a volume",
			ArgsUsage:   "VOLUME MOUNTPOINT",
			Description: "serve a volume over FUSE until unmounted or interrupted",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "read-only",
					Usage: "refuse all modifications",
					Value: conf.ReadOnly,
				},
				&cli.BoolFlag{
					Name:  "allow-other",
					Usage: "let other users access the mount",
					Value: conf.AllowOther,
				},
			},
			Action: func(ctx *cli.Context) error {
				path, err := arg(ctx, 0, "VOLUME")
				if err != nil {
					return err
				}
				mnt, err := arg(ctx, 1, "MOUNTPOINT")
				if err != nil {
					return err
				}
				return mount(path, mnt, bwfuse.Options{
					FSName:     conf.FSName,
					ReadOnly:   ctx.Bool("read-only"),
					AllowOther: ctx.Bool("allow-other"),
				})
			},
		}, {
			Name:      "ls",
			Aliases:   []string{"list"},
			Usage:     "list the entries of a volume",
			ArgsUsage: "VOLUME",
			Action: withFs(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				return list(fsys, os.Stdout)
			}),
		}, {
			Name:      "cat",
			Usage:     "write a file's contents to stdout",
			ArgsUsage: "VOLUME NAME",
			Action: withFs(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				name, err := arg(ctx, 1, "NAME")
				if err != nil {
					return err
				}
				return cat(fsys, name, os.Stdout)
			}),
		}, {
			Name:        "put",
			Usage:       "store a file in a volume",
			ArgsUsage:   "VOLUME NAME [FILE]",
			Description: "store FILE (or stdin) in the volume as NAME, replacing its contents",
			Action: withFs(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				name, err := arg(ctx, 1, "NAME")
				if err != nil {
					return err
				}
				var in io.Reader = os.Stdin
				if src := ctx.Args().Get(2); src != "" {
					f, err := os.Open(src)
					if err != nil {
						return fmt.Errorf("opening source: %w", err)
					}
					defer f.Close()
					in = f
				}
				return put(fsys, name, in)
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func arg(ctx *cli.Context, i int, name string) (string, error) {
	v := ctx.Args().Get(i)
	if v == "" {
		return "", cli.Exit(fmt.Sprintf("missing argument %s (usage: bwfs %s %s)",
			name, ctx.Command.Name, ctx.Command.ArgsUsage), 2)
	}
	return v, nil
}

func withFs(f func(*fs.FileSystem, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		path, err := arg(ctx, 0, "VOLUME")
		if err != nil {
			return err
		}
		d, err := disk.OpenPath(path)
		if err != nil {
			return err
		}
		fsys, err := fs.Mount(d)
		if err != nil {
			d.Close()
			return fmt.Errorf("mounting %s: %w", path, err)
		}
		if err := f(fsys, ctx); err != nil {
			fsys.Close()
			return err
		}
		return fsys.Close()
	}
}

func mkfs(path string, layout disk.Layout, blocks uint64) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	d, err := disk.Create(path, layout, blocks)
	if err != nil {
		return err
	}
	fsys, err := fs.Mkfs(d, blocks)
	if err != nil {
		d.Close()
		return err
	}
	sb := fsys.Super.Sb
	fmt.Printf("created %s volume %s: %d blocks of %d bytes, %d inodes, data from block %d\n",
		layout, sb.VolumeID, sb.TotalBlocks, common.BlockSize, common.NInode,
		sb.DataBlockStart)
	return fsys.Close()
}

func check(path string, strict bool) error {
	d, err := disk.OpenPath(path)
	if err != nil {
		return err
	}
	defer d.Close()
	r, err := fsck.Check(d)
	if r != nil {
		r.Print(os.Stdout)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("fsck: %v", err), 1)
	}
	if strict && !r.Clean() {
		return cli.Exit(fmt.Sprintf("fsck: %d problems", len(r.Problems)), 1)
	}
	return nil
}

func mount(path string, mountpoint string, opts bwfuse.Options) error {
	d, err := disk.OpenPath(path)
	if err != nil {
		return err
	}
	fsys, err := fs.Mount(d)
	if err != nil {
		d.Close()
		return fmt.Errorf("mounting %s: %w", path, err)
	}
	defer fsys.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		if err := bwfuse.Unmount(mountpoint); err != nil {
			log.Printf("unmounting %s: %v", mountpoint, err)
		}
	}()
	return bwfuse.Mount(fsys, mountpoint, opts)
}

func list(fsys *fs.FileSystem, w io.Writer) error {
	ents, err := fsys.List()
	if err != nil {
		return err
	}
	for _, e := range ents {
		ip, err := fsys.Stat(e.Inum)
		if err != nil {
			return err
		}
		kind := "-"
		if e.IsDir {
			kind = "d"
		}
		fmt.Fprintf(w, "%s %4d %6d %s\n", kind, e.Inum, ip.Size, e.Name)
	}
	return nil
}

func cat(fsys *fs.FileSystem, name string, w io.Writer) error {
	ip, err := fsys.Lookup(name)
	if err != nil {
		return err
	}
	data, err := fsys.ReadAt(ip.Inum, 0, ip.Size)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func put(fsys *fs.FileSystem, name string, r io.Reader) error {
	data, err := ioutil.ReadAll(io.LimitReader(r, int64(common.MaxFileSize)+1))
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if uint64(len(data)) > common.MaxFileSize {
		return fmt.Errorf("%s: input exceeds %d bytes: %w", name,
			common.MaxFileSize, common.ErrFileTooLarge)
	}
	var inum common.Inum
	if ip, err := fsys.Lookup(name); err == nil {
		inum = ip.Inum
		if err := fsys.Truncate(inum, 0); err != nil {
			return err
		}
	} else if inum, err = fsys.Create(name, false); err != nil {
		return err
	}
	_, err = fsys.WriteAt(inum, 0, data)
	return err
}
