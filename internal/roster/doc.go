// Package roster exposes the call roster to the translation core and groups
// a speaker's audience by target language.
package roster
