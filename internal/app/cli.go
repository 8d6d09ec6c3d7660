package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scrubline/backend/internal/client"
	"github.com/scrubline/backend/internal/config"
	"github.com/scrubline/backend/internal/ingest"
	"github.com/scrubline/backend/internal/models"
)

var ingestionPollInterval = 500 * time.Millisecond

// runUpload sends a local file to the API and prints the stored record. With
// -wait the ingestion stages are reported while the upload runs.
//
//	scrubline upload [-title T] [-wait] <file>
func runUpload(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	title := fs.String("title", "", "video title (defaults to the file name)")
	wait := fs.Bool("wait", false, "poll the ingestion status until it settles")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if fs.NArg() != 1 {
		return errors.New("usage: upload [-title T] [-wait] <file>")
	}

	api := client.New(cfg.APIURL, nil)
	session := client.NewSession()
	if err := session.BeginUpload(); err != nil {
		return err
	}

	uploadID := uuid.NewString()
	g, gctx := errgroup.WithContext(ctx)
	var video models.Video
	g.Go(func() error {
		var err error
		video, err = api.UploadWithID(gctx, uploadID, fs.Arg(0), *title)
		session.FinishUpload(video, err)
		if err != nil {
			return fmt.Errorf("upload %s: %w", fs.Arg(0), err)
		}
		return nil
	})
	if *wait {
		g.Go(func() error {
			_, err := api.WatchIngestion(gctx, uploadID, ingestionPollInterval, func(s ingest.Status) {
				fmt.Fprintf(out, "ingestion %s: %s at %s\n", s.VideoID, s.State, s.Stage)
			})
			if err != nil {
				return fmt.Errorf("wait for ingestion: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printJSON(out, video)
}

// runHover resolves the preview frame a pointer at x on a timeline of the
// given width would show.
//
//	scrubline hover <id> <x> <width>
func runHover(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	if len(args) != 3 {
		return errors.New("usage: hover <id> <x> <width>")
	}
	x, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("hover: invalid x %q: %w", args[1], err)
	}
	width, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("hover: invalid width %q: %w", args[2], err)
	}

	video, err := client.New(cfg.APIURL, nil).Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("hover: %w", err)
	}

	session := client.NewSession()
	session.Select(video)
	frame, _ := session.Hover(x, width)
	return printJSON(out, frame)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
