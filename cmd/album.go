package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/identity"
)

func newAlbumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "album",
		Short: "Manage albums of the local library",
	}
	cmd.AddCommand(newAlbumListCmd(), newAlbumCreateCmd(), newAlbumAddCmd(), newAlbumRemoveCmd())
	return cmd
}

func albumStore(cmd *cobra.Command) (*catalog.AlbumStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return catalog.NewAlbumStore(cfg.LibraryRoot), nil
}

func newAlbumListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all albums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := albumStore(cmd)
			if err != nil {
				return err
			}
			albums, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(albums) == 0 {
				fmt.Fprintln(out, "No albums yet. Create one with 'photosync album create <name>'.")
				return nil
			}
			for _, album := range albums {
				fmt.Fprintf(out, "%s  %-20s %-5s  %d items\n", album.ID, album.Name, album.Type, len(album.PhotoIDs))
			}
			return nil
		},
	}
}

func newAlbumCreateCmd() *cobra.Command {
	var description string
	var cloud bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := albumStore(cmd)
			if err != nil {
				return err
			}
			albums, err := store.Load()
			if err != nil {
				return err
			}
			if _, exists := catalog.Find(albums, args[0]); exists {
				return fmt.Errorf("an album named %q already exists", args[0])
			}

			albumType := catalog.AlbumLocal
			if cloud {
				albumType = catalog.AlbumCloud
			}
			album := catalog.NewAlbum(args[0], albumType)
			album.Description = description

			if err := store.Save(append(albums, album)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created album %s (%s).\n", album.Name, album.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "album description")
	cmd.Flags().BoolVar(&cloud, "cloud", false, "create a cloud album mirrored on the remote store")
	return cmd
}

func newAlbumAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <album> <file>...",
		Short: "Add media files to an album",
		Long: "add derives the content identity of each file and appends it to the album.\n" +
			"The album references identities, not paths, so moved files keep their album\n" +
			"membership.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store := catalog.NewAlbumStore(cfg.LibraryRoot)
			albums, err := store.Load()
			if err != nil {
				return err
			}
			album, ok := catalog.Find(albums, args[0])
			if !ok {
				return fmt.Errorf("no album with ID or name %q", args[0])
			}

			hasher := identity.NewHasher(cfg.LargeFileThresholdBytes())
			added := 0
			for _, file := range args[1:] {
				id, err := hasher.IdentifyFile(file)
				if err != nil {
					return fmt.Errorf("could not identify %s: %w", file, err)
				}
				if album.AddPhoto(id) {
					added++
				}
			}

			for i := range albums {
				if albums[i].ID == album.ID {
					albums[i] = album
				}
			}
			if err := store.Save(albums); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d items to %s.\n", added, album.Name)
			return nil
		},
	}
}

func newAlbumRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <album>",
		Short: "Delete an album (media files are untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := albumStore(cmd)
			if err != nil {
				return err
			}
			albums, err := store.Load()
			if err != nil {
				return err
			}
			album, ok := catalog.Find(albums, args[0])
			if !ok {
				return fmt.Errorf("no album with ID or name %q", args[0])
			}
			if !force && !PromptForConfirmation(fmt.Sprintf("Delete album %q?", album.Name), false) {
				return nil
			}

			remaining := albums[:0]
			for _, a := range albums {
				if a.ID != album.ID {
					remaining = append(remaining, a)
				}
			}
			if err := store.Save(remaining); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted album %s.\n", album.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
