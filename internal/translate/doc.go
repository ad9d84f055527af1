// Package translate contains the translation backend used for finalized
// transcript lines.
package translate
