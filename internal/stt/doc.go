// Package stt contains the acoustic model collaborators. Batch recognizers
// transcribe a whole segment per call; streaming recognizers keep per-session
// state and report partial and final hypotheses as audio arrives.
package stt
