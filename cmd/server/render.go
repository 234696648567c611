package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Inkroom/internal/adapters/discovery"
	"github.com/dkeye/Inkroom/internal/client/canvas"
	"github.com/dkeye/Inkroom/internal/client/draft"
	"github.com/dkeye/Inkroom/internal/client/export"
	"github.com/dkeye/Inkroom/internal/client/session"
	"github.com/dkeye/Inkroom/internal/store"
)

type renderOptions struct {
	server   string
	service  string
	room     string
	duration time.Duration
	width    int
	height   int
	out      string
	pdf      string
	saveUser string
	tier     string
	tags     []string
	public   bool
	autosave time.Duration
	draftDir string
}

func renderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Join a room as a viewer and write what it shows",
		Long: `Join a room without drawing, apply the room state and live strokes for
a while, then write the canvas as PNG (and optionally PDF).

Examples:
  inkroom render --room abc --server http://localhost:8080 --out abc.png
  inkroom render --room abc --duration 10s --pdf abc.pdf --save-user u1
  inkroom render --room abc --duration 1h --save-user u1 --autosave 30s --draft-dir drafts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "", "server base URL; discovered over mDNS when empty")
	cmd.Flags().StringVar(&opts.service, "service", discovery.DefaultService, "mDNS service to browse")
	cmd.Flags().StringVar(&opts.room, "room", "", "room to join")
	cmd.Flags().DurationVar(&opts.duration, "duration", 3*time.Second, "how long to follow live strokes")
	cmd.Flags().IntVar(&opts.width, "width", 1280, "canvas width")
	cmd.Flags().IntVar(&opts.height, "height", 720, "canvas height")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "room.png", "PNG output path")
	cmd.Flags().StringVar(&opts.pdf, "pdf", "", "optional PDF output path")
	cmd.Flags().StringVar(&opts.saveUser, "save-user", "", "also save the render to the server's drawing store as this user")
	cmd.Flags().StringVar(&opts.tier, "tier", "free", "entitlement tier used when saving")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "tags for the saved drawing")
	cmd.Flags().BoolVar(&opts.public, "public", false, "mark the saved drawing public")
	cmd.Flags().DurationVar(&opts.autosave, "autosave", 0, "save a draft this often while following; needs --save-user")
	cmd.Flags().StringVar(&opts.draftDir, "draft-dir", "", "keep a local draft copy here when the server is unreachable")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func resolveServer(opts renderOptions) (string, error) {
	if opts.server != "" {
		return opts.server, nil
	}
	addrs, err := discovery.Browse(opts.service, 2*time.Second)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errors.New("no server found on the local network; pass --server")
	}
	return "http://" + addrs[0], nil
}

func runRender(ctx context.Context, opts renderOptions) error {
	if opts.autosave > 0 && opts.saveUser == "" {
		return errors.New("--autosave needs --save-user")
	}
	base, err := resolveServer(opts)
	if err != nil {
		return err
	}
	cv, err := canvas.New(opts.width, opts.height, canvas.DefaultOptions())
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := session.Dial(dialCtx, session.SignalURL(base), cv)
	if err != nil {
		return fmt.Errorf("connect %s: %w", base, err)
	}
	defer client.Close()
	if err := client.Join(opts.room, "renderer"); err != nil {
		return err
	}
	log.Info().Str("module", "render").Str("server", base).Str("room", opts.room).
		Dur("duration", opts.duration).Msg("following room")

	var saver *draft.Saver
	if opts.saveUser != "" {
		saver = &draft.Saver{
			Source:   cv,
			Store:    store.NewRemote(base, opts.tier),
			UserID:   opts.saveUser,
			Title:    opts.room,
			Tags:     opts.tags,
			Public:   opts.public,
			Dir:      opts.draftDir,
			Interval: opts.autosave,
		}
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	followCtx, stop := context.WithCancel(ctx)
	defer stop()
	if opts.autosave > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = saver.Run(followCtx)
		}()
	}

	select {
	case <-time.After(opts.duration):
	case <-ctx.Done():
	case <-client.Done():
		return fmt.Errorf("connection lost: %w", client.Err())
	}
	stop()
	wg.Wait()

	img := cv.Composite()
	f, err := os.Create(opts.out)
	if err != nil {
		return err
	}
	if err := export.PNG(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("module", "render").Str("file", opts.out).Uint64("seq", cv.Watermark()).
		Int("participants", cv.Participants()).Msg("png written")

	if opts.pdf != "" {
		pf, err := os.Create(opts.pdf)
		if err != nil {
			return err
		}
		if err := export.PDF(pf, img, opts.room); err != nil {
			pf.Close()
			return err
		}
		if err := pf.Close(); err != nil {
			return err
		}
		log.Info().Str("module", "render").Str("file", opts.pdf).Msg("pdf written")
	}

	if saver != nil {
		res := saver.SaveNow(ctx)
		if !res.Cloud {
			if res.Path != "" {
				log.Warn().Str("module", "render").Str("file", res.Path).Msg("render kept as local draft")
			}
			return fmt.Errorf("save render: %w", res.Err)
		}
		log.Info().Str("module", "render").Str("id", res.ID).Msg("render saved")
	}
	return nil
}
