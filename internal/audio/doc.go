// Package audio holds PCM helpers shared by the filter, segmenter and
// recognizer clients: sample conversion, frame validation, duration math,
// RMS energy and WAV encoding.
package audio
