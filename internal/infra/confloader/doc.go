// Package confloader loads daemon configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Overrides, in practice command-line flags
//  2. Environment variables (RTCR_SECTION_KEY)
//  3. The YAML configuration file
//  4. Values already present in the target struct
//
// The Watcher reports edits of the configuration file so the daemon can
// re-read settings that are safe to change at runtime, such as the log
// level.
package confloader
