// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI covers the whole track workflow:
//  1. [ListScreen] : Browse tracks and start an upload
//  2. [UploadScreen] : Pick a file and watch the transfer progress bar
//  3. [DetailScreen] : Inspect analysis and render state, analyze, play the latest render
//  4. [RenderScreen] : Enter a cadence, pace or bpm target for a new render
//
// The detail screen is a thin shell over [tasks.TrackView]: flows run as commands and the view's
// change notifications are turned back into messages, so results of a track the user already left
// never reach the screen. Upload progress flows through a channel from the orchestrator, the same
// way the bulk engine reports progress to the CLI.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
