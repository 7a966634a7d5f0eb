// Package tgui holds small helpers for Telegram HTML parse mode:
// escaping, a few tag builders and rune-safe truncation.
//
// Values of type H are already escaped and can be concatenated freely.
package tgui
