package main

import (
	"github.com/mikepea/inkwell/pkg/inkwell/database"
	"github.com/mikepea/inkwell/pkg/inkwell/seed"
	"github.com/spf13/cobra"
)

var seedOpts = seed.DefaultOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with demo users, tags, posts and comments",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		_, err = seed.Seed(cmd.Context(), db, seedOpts)
		return err
	},
}

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedOpts.NumUsers, "users", seedOpts.NumUsers, "number of users to create")
	f.IntVar(&seedOpts.TagsPerUser, "tags", seedOpts.TagsPerUser, "tags per user")
	f.IntVar(&seedOpts.PostsPerUser, "posts", seedOpts.PostsPerUser, "posts per user")
	f.IntVar(&seedOpts.CommentsPerPost, "comments", seedOpts.CommentsPerPost, "comments per post")
	f.IntVar(&seedOpts.MaxDays, "max-days", seedOpts.MaxDays, "spread post dates over this many days")
	f.StringVar(&seedOpts.Password, "password", seedOpts.Password, "password for every seeded account")
	f.Int64Var(&seedOpts.Seed, "seed", 0, "random seed for reproducible data (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}
