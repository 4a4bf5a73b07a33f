package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neoxmeet/meet-backend/internal/database"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository/postgres"
)

func newSeedRoomCmd(deps *dependencies) *cobra.Command {
	var (
		code  string
		owner string
		title string
	)

	cmd := &cobra.Command{
		Use:   "seed-room",
		Short: "Create a room for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a uuid: %w", err)
			}

			conn, err := database.NewConnection(cmd.Context(), deps.Config.Database)
			if err != nil {
				return err
			}
			defer conn.Close()

			rooms := postgres.NewRoomRepository(conn.DB)
			room := &models.Room{Code: code, OwnerID: ownerID, Title: title}
			if err := rooms.Create(cmd.Context(), room); err != nil {
				if errors.Is(err, postgres.ErrRoomCodeTaken) {
					existing, getErr := rooms.GetByCode(cmd.Context(), code)
					if getErr != nil {
						return getErr
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Room %s already exists (id %s)\n", code, existing.ID)
					return nil
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (id %s) owned by %s\n", room.Code, room.ID, ownerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "abc-defg-hij", "room code")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().StringVar(&title, "title", "Demo room", "room title")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
