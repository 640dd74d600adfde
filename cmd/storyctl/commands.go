package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/inkwell-space/core/internal/client"
	"github.com/inkwell-space/core/internal/editor"
	"github.com/inkwell-space/core/internal/modules/content/story"
	"github.com/inkwell-space/core/internal/pkg/document"
)

// readLines streams r line by line until EOF or ctx is done, then closes the
// channel.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func (app *cli) newClient() (*client.Client, error) {
	return client.New(app.server)
}

// authedClient restores the saved token, verifying it with the server.
func (app *cli) authedClient(ctx context.Context) (*client.Client, error) {
	c, err := app.newClient()
	if err != nil {
		return nil, err
	}
	creds, err := app.creds.Load(ctx, c)
	if err != nil {
		return nil, err
	}
	c.SetToken(creds.Token)
	return c, nil
}

func oneID(name string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%s needs exactly one story id", name)
	}
	return args[0], nil
}

func runLogin(ctx context.Context, app *cli, _ []string) error {
	c, err := app.newClient()
	if err != nil {
		return err
	}
	fmt.Fprint(app.stderr, "write password: ")
	line, err := bufio.NewReader(app.stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	creds, err := c.Login(ctx, strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	if err := app.creds.Save(creds); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "logged in to %s until %s\n", creds.Server, creds.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func runLogout(_ context.Context, app *cli, _ []string) error {
	if err := app.creds.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, "logged out")
	return nil
}

func runList(ctx context.Context, app *cli, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	page := fs.Int("page", 1, "Page number")
	size := fs.Int("size", 20, "Page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := app.authedClient(ctx)
	if err != nil {
		return err
	}
	res, err := c.List(ctx, *page, *size)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTITLE\tSLUG\tVIEWS\tUPDATED")
	for _, s := range res.Data {
		status := "draft"
		if s.Published {
			status = "published"
		}
		slug := "-"
		if s.Slug != nil {
			slug = *s.Slug
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", s.ID, status, s.Title, slug, s.ViewCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := res.Pagination
	fmt.Fprintf(app.stdout, "page %d/%d, %d stories\n", p.CurrentPage, p.TotalPage, p.Total)
	return nil
}

// runWrite turns each stdin line into a paragraph (or a heading for lines
// starting with "# ") and lets the session auto-save as lines arrive.
func runWrite(ctx context.Context, app *cli, args []string) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	id := fs.String("id", "", "Existing story id (default: create a new story)")
	title := fs.String("title", "", "Story title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := app.authedClient(ctx)
	if err != nil {
		return err
	}

	sess := editor.New(c, editor.Options{
		StoryID: *id,
		Logger:  app.logger,
		OnStatus: func(field string, st editor.Status) {
			switch {
			case st.State == editor.StateClean && !st.LastSaved.IsZero():
				app.logger.Debug("saved", zap.String("field", field), zap.Time("at", st.LastSaved))
			case st.State == editor.StateDirty && st.LastError != nil:
				fmt.Fprintf(app.stderr, "! %s not saved: %v\n", field, st.LastError)
			}
		},
	})
	if err := sess.Begin(ctx); err != nil {
		return err
	}
	fmt.Fprintf(app.stderr, "editing story %s, end with Ctrl-D\n", sess.StoryID())
	if *title != "" {
		if err := sess.SetTitle(*title); err != nil {
			return err
		}
	}

	doc := sess.Content()
	if document.WordCount(doc) == 0 {
		doc = document.Node{Type: document.TypeDoc}
	}
	lines := readLines(ctx, app.stdin)

	interrupted := false
loop:
	for {
		select {
		case <-ctx.Done():
			interrupted = true
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			doc.Content = append(doc.Content, document.FromLines([]string{line}).Content...)
			if err := sess.SetContent(doc); err != nil {
				return err
			}
		}
	}

	if !interrupted {
		if err := sess.Flush(ctx); err != nil {
			app.logger.Warn("final save failed", zap.Error(err))
		}
	}
	if sess.Close() {
		st := sess.Status()
		fmt.Fprintln(app.stderr, "warning: story has unsaved changes")
		if st.Conflict {
			fmt.Fprintln(app.stderr, "the story was changed elsewhere; reopen it with -id to continue")
		}
		return errors.New("unsaved changes")
	}
	fmt.Fprintf(app.stdout, "saved %s (version %d)\n", sess.StoryID(), sess.Status().Version)
	return nil
}

func runPublish(ctx context.Context, app *cli, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	subtitle := fs.String("subtitle", "", "Subtitle")
	image := fs.String("image", "", "Preview image file to upload")
	readingTime := fs.Int("reading-time", -1, "Reading time in minutes (default: estimated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID("publish", fs.Args())
	if err != nil {
		return err
	}
	c, err := app.authedClient(ctx)
	if err != nil {
		return err
	}

	if *image != "" {
		f, err := os.Open(*image)
		if err != nil {
			return err
		}
		_, err = c.UploadPreviewImage(ctx, id, filepath.Base(*image), f)
		f.Close()
		if err != nil {
			return fmt.Errorf("upload preview image: %w", err)
		}
	}

	var meta story.PublishInput
	if *subtitle != "" {
		meta.Subtitle = subtitle
	}
	if *readingTime >= 0 {
		meta.ReadingTime = readingTime
	}

	sess := editor.New(c, editor.Options{StoryID: id, Logger: app.logger})
	defer sess.Close()
	if err := sess.Begin(ctx); err != nil {
		return err
	}
	published, err := sess.Publish(ctx, meta)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "published %s at %s/story/%s\n", published.ID, strings.TrimRight(c.Server(), "/"), published.SlugValue())
	return nil
}

func runUnpublish(ctx context.Context, app *cli, args []string) error {
	id, err := oneID("unpublish", args)
	if err != nil {
		return err
	}
	c, err := app.authedClient(ctx)
	if err != nil {
		return err
	}
	if _, err := c.Unpublish(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "unpublished %s\n", id)
	return nil
}

func runRemove(ctx context.Context, app *cli, args []string) error {
	id, err := oneID("rm", args)
	if err != nil {
		return err
	}
	c, err := app.authedClient(ctx)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "deleted %s\n", id)
	return nil
}
