// Package tui provides a Bubble Tea terminal user interface for
// vasset-downloader.
//
// The interface walks one download at a time through the controller in
// internal/download: URL input, parsing, a format picker with video and
// audio tabs, live progress and the final result. Controller updates reach
// the program through tea.Program.Send.
package tui
