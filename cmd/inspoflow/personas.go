package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/inspoflow/config"
	"github.com/robertmeta/inspoflow/generate"
	"github.com/robertmeta/inspoflow/model"
)

func personaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Display name"},
		&cli.StringFlag{Name: "bio", Usage: "Short description"},
		&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "System instruction sent to the model"},
		&cli.StringFlag{Name: "avatar", Usage: "Avatar URL"},
		&cli.StringFlag{Name: "color", Usage: "Card color, one of: " + strings.Join(model.CardColors, ", ")},
		&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag (repeatable)"},
	}
}

func personasCommand() *cli.Command {
	return &cli.Command{
		Name:  "personas",
		Usage: "Manage personas",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all personas",
				Action: withEnv(listPersonas),
			},
			{
				Name:      "show",
				Usage:     "Show a persona",
				ArgsUsage: "<persona-id>",
				Action:    withEnv(showPersona),
			},
			{
				Name:   "add",
				Usage:  "Add a persona",
				Flags:  personaFlags(),
				Action: withEnv(addPersona),
			},
			{
				Name:      "edit",
				Usage:     "Edit a persona (only the given fields change)",
				ArgsUsage: "<persona-id>",
				Flags:     personaFlags(),
				Action:    withEnv(editPersona),
			},
			{
				Name:      "delete",
				Usage:     "Delete a persona (existing feed items keep their copy)",
				ArgsUsage: "<persona-id>",
				Action:    withEnv(deletePersona),
			},
			{
				Name:      "polish",
				Usage:     "Rewrite a bio or system instruction with the model",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Value:   string(generate.FieldBio),
						Usage:   "Field the text belongs to: bio or systemInstruction",
					},
				},
				Action: withEnv(polishText),
			},
		},
	}
}

func listPersonas(c *cli.Context, e *env) error {
	return outputJSON(e.personas.List())
}

func showPersona(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow personas show <persona-id>", ExitUsageError)
	}
	p, ok := e.personas.Get(c.Args().Get(0))
	if !ok {
		return cli.Exit("Persona not found", ExitDataError)
	}
	return outputJSON(p)
}

func applyPersonaFlags(c *cli.Context, p *model.Persona) {
	if c.IsSet("name") {
		p.Name = c.String("name")
	}
	if c.IsSet("bio") {
		p.Bio = c.String("bio")
	}
	if c.IsSet("instruction") {
		p.SystemInstruction = c.String("instruction")
	}
	if c.IsSet("avatar") {
		p.AvatarURL = c.String("avatar")
	}
	if c.IsSet("color") {
		p.CardClassName = c.String("color")
	}
	if c.IsSet("tag") {
		p.Tags = c.StringSlice("tag")
	}
}

func addPersona(c *cli.Context, e *env) error {
	p := model.Persona{CardClassName: model.CardColors[0]}
	applyPersonaFlags(c, &p)

	if err := p.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}

	created := e.personas.Add(p.Data())
	return outputJSON(map[string]interface{}{
		"success": true,
		"persona": created,
	})
}

func editPersona(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow personas edit <persona-id> [--name ...]", ExitUsageError)
	}

	p, ok := e.personas.Get(c.Args().Get(0))
	if !ok {
		return cli.Exit("Persona not found", ExitDataError)
	}
	applyPersonaFlags(c, &p)

	if err := p.Validate(); err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	if !e.personas.Update(p) {
		return cli.Exit("Persona not found", ExitDataError)
	}
	return outputJSON(map[string]interface{}{
		"success": true,
		"persona": p,
	})
}

func deletePersona(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow personas delete <persona-id>", ExitUsageError)
	}

	id := c.Args().Get(0)
	if !e.personas.Delete(id) {
		return cli.Exit("Persona not found", ExitDataError)
	}
	return outputJSON(map[string]interface{}{
		"success":    true,
		"persona_id": id,
	})
}

func polishText(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow personas polish <text> [--field bio|systemInstruction]", ExitUsageError)
	}

	field, err := generate.ParseField(c.String("field"))
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return outputJSON(map[string]string{"field": string(field), "text": text})
	}

	client, err := e.client()
	if err != nil {
		return configExit(err)
	}
	polished := client.Polish(c.Context, text, field)
	if model.IsErrorContent(polished) {
		return cli.Exit(polished, ExitGeneralError)
	}
	return outputJSON(map[string]string{"field": string(field), "text": polished})
}

func configExit(err error) error {
	if errors.Is(err, config.ErrMissingAPIKey) {
		return cli.Exit(fmt.Sprintf("%v; run `inspoflow settings set --api-key <key>`", err), ExitUsageError)
	}
	return cli.Exit(err.Error(), ExitGeneralError)
}
