package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pulse/internal/models"
	"github.com/desertthunder/pulse/internal/shared"
)

// communityCommand handles the diary board and the inbox.
func communityCommand(r *Runner) *cli.Command {
	listFlags := func() []cli.Flag {
		return append(storeFlags(),
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of entries to show (0 for all)"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
		)
	}

	return &cli.Command{
		Name:    "community",
		Aliases: []string{"diary"},
		Usage:   "Diary posts, likes and private messages",
		Commands: []*cli.Command{
			{
				Name:   "posts",
				Usage:  "List diary posts, newest first",
				Flags:  listFlags(),
				Action: r.CommunityPosts,
			},
			{
				Name:  "post",
				Usage: "Publish a diary post",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "name", Usage: "Author name (default: Anonymous)"},
					&cli.StringFlag{Name: "text", Usage: "Post text", Required: true},
					&cli.BoolFlag{Name: "as-site", Usage: "Sign with the site name (administrator only)"},
				),
				Action: r.CommunityPost,
			},
			{
				Name:      "like",
				Usage:     "Like a diary post",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.CommunityLike,
			},
			{
				Name:  "message",
				Usage: "Send a private message to the administrator",
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "name", Usage: "Author name (default: Anonymous)"},
					&cli.StringFlag{Name: "text", Usage: "Message text", Required: true},
				),
				Action: r.CommunityMessage,
			},
			{
				Name:   "inbox",
				Usage:  "List private messages (administrator only)",
				Flags:  listFlags(),
				Action: r.CommunityInbox,
			},
			{
				Name:      "delete-post",
				Usage:     "Delete a diary post",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.CommunityDeletePost,
			},
			{
				Name:      "delete-message",
				Usage:     "Delete a private message",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     storeFlags(),
				Action:    r.CommunityDeleteMessage,
			},
		},
	}
}

// CommunityPosts lists the diary.
func (r *Runner) CommunityPosts(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.PostsCollection)
	if err != nil {
		return err
	}
	defer m.Deactivate()

	posts := m.Posts()
	if limit := cmd.Int("limit"); limit > 0 {
		posts = m.LatestPosts(limit)
	}

	if cmd.Bool("json") {
		return r.writeJSON(posts, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Diary: %d posts", len(posts)))
	for _, p := range posts {
		author := p.AuthorName
		if p.Verified {
			author += " ✓"
		}
		r.writePlainln("%s • %s • ♥ %d  [%s]", author, p.CreatedAtDisplay, p.LikeCount, p.ID)
		r.writePlain("  %s\n", p.Text)
	}
	return nil
}

// CommunityPost publishes a post.
func (r *Runner) CommunityPost(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	id, err := r.newCommunity(b).PostEntry(b.ctx, cmd.String("name"), cmd.String("text"), cmd.Bool("as-site"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Posted %s\n", id)
	return nil
}

// CommunityLike likes a post and prints its new count.
func (r *Runner) CommunityLike(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: post id", shared.ErrMissingArgument)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	n, err := r.newCommunity(b).Like(b.ctx, id)
	if err != nil {
		return err
	}
	r.writePlain("♥ %d\n", n)
	return nil
}

// CommunityMessage sends a private message.
func (r *Runner) CommunityMessage(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if _, err := r.newCommunity(b).SendMessage(b.ctx, cmd.String("name"), cmd.String("text")); err != nil {
		return err
	}
	r.writePlain("✓ Message sent\n")
	return nil
}

// CommunityInbox lists private messages.
func (r *Runner) CommunityInbox(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	m, err := r.loadMirror(b, models.InboxCollection)
	if err != nil {
		return err
	}
	defer m.Deactivate()

	inbox := m.Inbox()
	if limit := cmd.Int("limit"); limit > 0 && limit < len(inbox) {
		inbox = inbox[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(inbox, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Inbox: %d messages", len(inbox)))
	for _, msg := range inbox {
		r.writePlainln("%s  [%s]", msg.AuthorName, msg.ID)
		r.writePlain("  %s\n", msg.Text)
	}
	return nil
}

// CommunityDeletePost removes a post.
func (r *Runner) CommunityDeletePost(ctx context.Context, cmd *cli.Command) error {
	return r.deleteRecord(ctx, cmd, "post")
}

// CommunityDeleteMessage removes a private message.
func (r *Runner) CommunityDeleteMessage(ctx context.Context, cmd *cli.Command) error {
	return r.deleteRecord(ctx, cmd, "message")
}

func (r *Runner) deleteRecord(ctx context.Context, cmd *cli.Command, kind string) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: %s id", shared.ErrMissingArgument, kind)
	}

	b, err := r.openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.close()

	svc := r.newCommunity(b)
	if kind == "post" {
		err = svc.DeletePost(b.ctx, id)
	} else {
		err = svc.DeleteMessage(b.ctx, id)
	}
	if err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s %s\n", kind, id)
	return nil
}
