// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles setup operations for configuration and the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a default configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	credentialFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Aliases: []string{"e"},
				Usage:   "Account email (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password (prompted when omitted)",
				Sources: cli.EnvVars("BPMX_PASSWORD"),
			},
		}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:   "signup",
				Usage:  "Create an account and store its access token",
				Flags:  credentialFlags(),
				Action: r.AuthSignup,
			},
			{
				Name:   "login",
				Usage:  "Log in and store the access token",
				Flags:  credentialFlags(),
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored access token",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the stored token and the account it belongs to",
				Action: r.AuthStatus,
			},
		},
	}
}

// tracksCommand handles the track library
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tracks",
		Aliases: []string{"t"},
		Usage:   "Track library operations",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List uploaded tracks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, markdown or json",
						Value:   string(formatter.FormatText),
					},
					&cli.BoolFlag{
						Name:  "offline",
						Usage: "Read from the local track cache instead of the API",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the listing to a file",
					},
				},
				Action: r.TracksList,
			},
			{
				Name:  "show",
				Usage: "Show a track with its analysis and latest render",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TracksShow,
			},
			{
				Name:  "upload",
				Usage: "Upload an audio file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mime",
						Usage: "Content type (detected from the file extension when omitted)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Track title",
					},
					&cli.BoolFlag{
						Name:  "analyze",
						Usage: "Start tempo analysis once the upload is registered",
					},
				},
				Action: r.TracksUpload,
			},
			{
				Name:  "orphans",
				Usage: "List transferred files that were never registered as tracks",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "forget",
						Usage: "Remove the listed entries from the upload journal",
					},
				},
				Action: r.TracksOrphans,
			},
		},
	}
}

// analyzeCommand runs tempo analysis for one or many tracks
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Detect the tempo of a track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up waiting after this long",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Analyze,
		Commands: []*cli.Command{
			{
				Name:      "all",
				Usage:     "Analyze the given tracks, or every track when none are given",
				ArgsUsage: "[track-id...]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent analyses",
					},
					&cli.FloatFlag{
						Name:  "rate-limit",
						Usage: "Maximum analyses started per second",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AnalyzeAll,
			},
		},
	}
}

// renderCommand creates a tempo-adjusted render
func renderCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render a track at a target tempo",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  "bpm",
				Usage: "Target tempo in beats per minute",
			},
			&cli.FloatFlag{
				Name:  "cadence",
				Usage: "Target running cadence in steps per minute",
			},
			&cli.StringFlag{
				Name:  "pace",
				Usage: "Target pace as min:sec per mile or km",
			},
			&cli.BoolFlag{
				Name:  "stride",
				Usage: "Place one beat per stride instead of per step",
			},
			&cli.BoolFlag{
				Name:  "no-preserve-pitch",
				Usage: "Let pitch follow the tempo change",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up waiting after this long",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "play",
				Usage: "Fetch and open the audio once the render is done",
			},
		},
		Action: r.Render,
	}
}

// playCommand fetches render audio through an authenticated request
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Download a finished render and print its local path",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "render-id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the file with the system player",
			},
		},
		Action: r.Play,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the backend API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the raw response",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse tracks, run analyses and play renders interactively",
		Action:  r.TUI,
	}
}
