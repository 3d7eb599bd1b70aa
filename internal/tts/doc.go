// Package tts converts episode scripts to MP3 audio through the Cloud
// Text-to-Speech REST API.
package tts
