// Package models defines the domain types exchanged with the BPM runner backend.
//
// The package contains:
//
//  1. Wire types decoded from backend responses
//     - [Track] : an uploaded audio file
//     - [Analysis] : tempo detection job, polled until terminal
//     - [Render] : tempo-adjusted rendition, polled until terminal
//     - [TrackDetail] : track plus its analysis and latest render
//
//  2. Local records persisted by the repositories package
//     - [UploadRecord] : journal row for one upload attempt
//     - [CachedTrack] : offline copy of the track listing
//
//  3. Tempo helpers turning running cadence or pace into a render target ([TargetBPM]).
//
// [JobStatus.IsTerminal] is the single definition of when polling stops.
package models
