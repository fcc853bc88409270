package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/root"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// ErrNotFound is returned by cache:get for a missing or expired entry.
var ErrNotFound = errors.New("cache entry not found")

var (
	getPath string

	putTags    []string
	putTTL     time.Duration
	putForever bool
)

var getCmd = &cobra.Command{
	Use:   "cache:get <id>",
	Short: "Print the stored payload of an entry",
	Long: `Print the stored payload of an entry. With --path the payload is read
as JSON and only the value at that gjson path is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		payload, found, err := s.backend.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, args[0])
		}
		log.Debug().Str("id", args[0]).Str("size", humanize.Bytes(uint64(len(payload)))).Msg("Loaded cache entry")

		if getPath != "" {
			result := gjson.GetBytes(payload, getPath)
			if !result.Exists() {
				return fmt.Errorf("%w: %s at %s", ErrNotFound, args[0], getPath)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.String())
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "cache:put <id> <value>",
	Short: "Store a value under an id",
	Long: `Store a value under an id. With automatic serialization enabled a
value that parses as JSON is stored as the decoded value, anything else as
a string.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		var opts []cache.SaveOption
		switch {
		case putForever:
			opts = append(opts, cache.WithoutExpiration())
		case cmd.Flags().Changed("ttl"):
			opts = append(opts, cache.WithTTL(putTTL))
		}

		var value any = args[1]
		if s.cfg.Cache.AutomaticSerialization {
			var decoded any
			if err := json.Unmarshal([]byte(args[1]), &decoded); err == nil {
				value = decoded
			}
		}

		if err := s.repo.Put(cmd.Context(), args[0], value, putTags, opts...); err != nil {
			return err
		}
		log.Info().Str("id", args[0]).Strs("tags", putTags).Msg("Stored cache entry")
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "cache:forget <id>...",
	Short: "Remove entries by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, id := range args {
			if err := s.repo.Forget(cmd.Context(), id); err != nil {
				return err
			}
		}
		log.Info().Strs("ids", args).Msg("Removed cache entries")
		return nil
	},
}

var flushTagsCmd = &cobra.Command{
	Use:   "cache:flush-tags <tag>...",
	Short: "Remove every entry carrying at least one of the tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.repo.FlushTags(cmd.Context(), args...); err != nil {
			return err
		}
		log.Info().Strs("tags", args).Msg("Flushed tagged cache entries")
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "cache:prune",
	Short: "Remove expired entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.repo.Prune(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("Pruned expired cache entries")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "cache:clear",
	Short: "Remove every entry from the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.repo.Flush(cmd.Context()); err != nil {
			return err
		}
		log.Info().Str("store", s.cfg.Cache.Store).Msg("Cleared cache store")
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getPath, "path", "", "gjson path to extract from a JSON payload")

	putCmd.Flags().StringSliceVar(&putTags, "tag", nil, "tag to attach, repeatable")
	putCmd.Flags().DurationVar(&putTTL, "ttl", 0, "lifetime of the entry, defaults to CACHE_LIFETIME")
	putCmd.Flags().BoolVar(&putForever, "forever", false, "store without expiration")

	root.GetRoot().AddCommand(getCmd, putCmd, forgetCmd, flushTagsCmd, pruneCmd, clearCmd)
}
