package main

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/util"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	var userID uint64
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute follower/following/post counters from the relation tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			if userID != 0 {
				if err = rt.svcs.Counter.Reconcile(cmd.Context(), userID); err != nil {
					return err
				}
				cmd.Printf("reconciled user %d\n", userID)
				return nil
			}
			n, err := rt.svcs.Counter.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("reconciled %d users\n", n)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "reconcile a single user (default: every user)")
	return cmd
}

func newImportFollowsCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-follows",
		Short: "Import follow edges from a CSV file of follower_id,following_id rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			edges, err := readEdges(f)
			if err != nil {
				return err
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			created, err := rt.svcs.UserFollow.BulkFollow(cmd.Context(), edges)
			if err != nil {
				return err
			}
			cmd.Printf("read %d edges, created %d\n", len(edges), created)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with follower_id,following_id rows")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readEdges 解析 CSV，允许首行为表头
func readEdges(r io.Reader) ([]*model.UserFollow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var edges []*model.UserFollow
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		follower, err1 := strconv.ParseUint(strings.TrimSpace(record[0]), 10, 64)
		following, err2 := strconv.ParseUint(strings.TrimSpace(record[1]), 10, 64)
		if err1 != nil || err2 != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid edge %q", line, strings.Join(record, ","))
		}
		edges = append(edges, &model.UserFollow{FollowerID: follower, FollowingID: following})
	}
	return edges, nil
}

func newDeletePostsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-posts POST_ID...",
		Short: "Delete posts and remove them from every feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := util.StrSliceToUInt64Slice(args)
			if err != nil {
				return err
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			n, err := rt.svcs.Post.BulkDeletePosts(cmd.Context(), ids)
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d posts\n", n)
			return nil
		},
	}
}

func newRemoveAuthorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-author USER_ID",
		Short: "Remove an author: detach posts, clear feeds and follow edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authorID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.svcs.Author.RemoveAuthor(cmd.Context(), authorID)
			if err != nil {
				return err
			}
			cmd.Printf("posts detached: %d, feed entries removed: %d, edges removed: %d\n",
				res.PostsDetached, res.EntriesRemoved, res.EdgesRemoved)
			return nil
		},
	}
}

func newReplayDeadLettersCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay-dead-letters",
		Short: "Replay pending fan-out and backfill dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.svcs.DeadLetter.Replay(cmd.Context(), limit)
			if err != nil {
				return err
			}
			cmd.Printf("resolved: %d, failed: %d, parked: %d, skipped: %d\n",
				res.Resolved, res.Failed, res.Parked, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum letters to replay (default: timeline.dead_letter.replay_limit)")
	return cmd
}

func newSweepFanoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-fanout",
		Short: "Dispatch fan-out for posts stuck in the pending state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			n, err := rt.svcs.Fanout.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("dispatched %d posts\n", n)
			return nil
		},
	}
}
