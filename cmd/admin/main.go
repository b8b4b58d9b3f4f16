package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"staychat/backend/internal/bootstrap"
	"staychat/backend/internal/config"
	"staychat/backend/internal/logging"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"github.com/spf13/pflag"
)

const usage = `Usage: admin [--config file] <command> [args]

Commands:
  rooms <role> <id>              list the rooms of an identity
  clear-room <room_id>           delete every message of a room
  mark-seen <room_id> <role> <id>
                                 mark a room read on behalf of a participant
  sync-provider <listing_id>     re-point a listing's rooms at its current provider
  token <role> <id>              issue a bearer token`

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	timeout := pflag.Duration("timeout", 30*time.Second, "command timeout")
	pflag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 1 {
		pflag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, "warn")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// token does not need the store.
	if args[0] == "token" {
		if err := issueToken(cfg, args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(ctx, store, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, s storage.Storage, args []string) error {
	switch args[0] {
	case "rooms":
		if len(args) != 3 {
			return fmt.Errorf("usage: admin rooms <role> <id>")
		}
		id, err := identity(args[1], args[2])
		if err != nil {
			return err
		}
		rooms, err := s.ListRoomsForIdentity(ctx, id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)

	case "clear-room":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin clear-room <room_id>")
		}
		room, err := s.GetRoom(ctx, args[1])
		if err != nil {
			return err
		}
		if err := s.ClearRoom(ctx, room.ID, models.Identity{ID: room.RequesterID, Role: models.RoleRequester}); err != nil {
			return err
		}
		fmt.Printf("Room %s has been cleared.\n", room.ID)
		return nil

	case "mark-seen":
		if len(args) != 4 {
			return fmt.Errorf("usage: admin mark-seen <room_id> <role> <id>")
		}
		reader, err := identity(args[2], args[3])
		if err != nil {
			return err
		}
		room, err := s.GetRoom(ctx, args[1])
		if err != nil {
			return err
		}
		if !room.HasIdentity(reader) {
			return fmt.Errorf("%s is not a participant of room %s", reader, room.ID)
		}
		flipped, err := s.MarkSeen(ctx, room.ID, reader.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%d message(s) marked seen.\n", len(flipped))
		return nil

	case "sync-provider":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin sync-provider <listing_id>")
		}
		syncer, ok := s.(bootstrap.ProviderSyncer)
		if !ok {
			return fmt.Errorf("store does not support sync-provider")
		}
		n, err := syncer.SyncProvider(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%d room(s) updated.\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func issueToken(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: admin token <role> <id>")
	}
	id, err := identity(args[0], args[1])
	if err != nil {
		return err
	}
	jwt, err := bootstrap.JWTManager(cfg)
	if err != nil {
		return err
	}
	token, expires, err := jwt.GenerateToken(id)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func identity(role, id string) (models.Identity, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{ID: id, Role: r}, nil
}
