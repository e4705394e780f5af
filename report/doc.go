// Package report turns handshake reports and sweep results into serializable
// models and renders them as text, JSON or YAML. Byte sequences are written as
// "0x3C 0x80 0x7C" hex strings.
package report
