package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/preset"
	"github.com/hjl2004-10/ai-chat-sillytavern-sub000/pkg/message"
)

// positionNone folds a segment into the head system message.
const positionNone = "none"

// segmentInput is what the segment form collects.
type segmentInput struct {
	Name     string
	Role     message.Role
	Content  string
	Position string
	Depth    string
	Enabled  bool
}

func (in segmentInput) validate() error {
	var errs []error
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !in.Role.Valid() {
		errs = append(errs, fmt.Errorf("unknown role %q", in.Role))
	}
	switch in.Position {
	case positionNone, string(preset.PositionHead), string(preset.PositionTail):
	case string(preset.PositionDepth):
		if err := validateDepth(in.Depth); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown position %q", in.Position))
	}
	return errors.Join(errs...)
}

func validateDepth(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("depth must be a non-negative integer, got %q", s)
	}
	return nil
}

// segment builds a static segment with a fresh identifier.
func (in segmentInput) segment() preset.Segment {
	s := preset.NewStatic(uuid.NewString(), strings.TrimSpace(in.Name), in.Role, in.Content)
	s.Enabled = in.Enabled
	switch in.Position {
	case string(preset.PositionHead), string(preset.PositionTail):
		s.Injection = &preset.Injection{Position: preset.Position(in.Position)}
	case string(preset.PositionDepth):
		depth, _ := strconv.Atoi(strings.TrimSpace(in.Depth))
		s.Injection = &preset.Injection{Position: preset.PositionDepth, Depth: depth}
	}
	return s
}

// addSegment appends s to p. An explicit order descriptor gets a matching
// entry; an empty one keeps falling back to the default order.
func addSegment(p *preset.Preset, s preset.Segment) {
	p.Prompts = append(p.Prompts, s)
	if len(p.PromptOrder) > 0 {
		p.PromptOrder = append(p.PromptOrder, preset.OrderEntry{Identifier: s.Identifier, Enabled: true})
	}
}

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Edit preset segments",
	}
	cmd.AddCommand(segmentAddCmd())
	return cmd
}

func segmentAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a custom segment to a stored preset",
		Long:  "Add a custom segment to a stored preset. Without --content an interactive form asks for the fields.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("preset")

			in := segmentInput{Position: positionNone, Depth: "4", Enabled: true}
			in.Name, _ = cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			in.Role = message.Role(role)
			in.Content, _ = cmd.Flags().GetString("content")
			if cmd.Flags().Changed("position") {
				in.Position, _ = cmd.Flags().GetString("position")
			}
			if cmd.Flags().Changed("depth") {
				depth, _ := cmd.Flags().GetInt("depth")
				in.Depth = strconv.Itoa(depth)
			}
			if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
				in.Enabled = false
			}

			if !cmd.Flags().Changed("content") {
				if err := segmentForm(&in).Run(); err != nil {
					return err
				}
			}
			if err := in.validate(); err != nil {
				return err
			}

			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := store.Get(cmd.Context(), name)
			if err != nil {
				return err
			}
			s := in.segment()
			addSegment(p, s)
			if err := store.Put(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added segment %q (%s) to %q\n", s.Name, s.Identifier, p.Name)
			return nil
		},
	}
	cmd.Flags().String("preset", "", "Stored preset to edit")
	cmd.Flags().String("db", "", "Preset database (default: the preset.sqlite module's)")
	cmd.Flags().String("name", "", "Segment name")
	cmd.Flags().String("role", string(message.RoleSystem), "Role: system, user or assistant")
	cmd.Flags().String("content", "", "Segment text; skips the interactive form")
	cmd.Flags().String("position", positionNone, "Injection position: none, head, tail or depth")
	cmd.Flags().Int("depth", 4, "Injection depth for --position depth")
	cmd.Flags().Bool("disabled", false, "Store the segment disabled")
	_ = cmd.MarkFlagRequired("preset")
	return cmd
}

func segmentForm(in *segmentInput) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Segment name").
				Value(&in.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewSelect[message.Role]().
				Title("Role").
				Options(huh.NewOptions(message.RoleSystem, message.RoleUser, message.RoleAssistant)...).
				Value(&in.Role),
			huh.NewText().
				Title("Content").
				Description("{{char}}, {{user}} and other macros are substituted at assembly.").
				Value(&in.Content),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Position").
				Options(
					huh.NewOption("Head system message", positionNone),
					huh.NewOption("After the history", string(preset.PositionTail)),
					huh.NewOption("Inside the history, counted from the end", string(preset.PositionDepth)),
				).
				Value(&in.Position),
			huh.NewInput().
				Title("Depth").
				Value(&in.Depth).
				Validate(validateDepth),
			huh.NewConfirm().
				Title("Enabled?").
				Value(&in.Enabled),
		),
	)
}
