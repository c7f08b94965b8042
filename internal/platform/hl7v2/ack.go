package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Acknowledgment codes from table 0008.
const (
	AckAccept = "AA"
	AckError  = "AE"
	AckReject = "AR"
)

// BuildAck renders the acknowledgment for a received message: an ACK whose
// routing fields are swapped and whose MSA names the original control id.
func BuildAck(msg *Message, code, text string) []byte {
	version := msg.Version
	if version == "" {
		version = "2.5.1"
	}
	msh := fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ACK^%s|ACK%s|P|%s",
		sanitize(msg.ReceivingApp), sanitize(msg.ReceivingFacility),
		sanitize(msg.SendingApp), sanitize(msg.SendingFacility),
		ackTimestamp(), sanitize(msg.TriggerEvent), sanitize(msg.ControlID), sanitize(version))
	msa := fmt.Sprintf("MSA|%s|%s", code, sanitize(msg.ControlID))
	if text != "" {
		msa += "|" + sanitize(text)
	}
	return []byte(msh + "\r" + msa + "\r")
}

// RejectAck acknowledges input that could not even be parsed, so no control
// id is available.
func RejectAck(text string) []byte {
	ts := ackTimestamp()
	msh := fmt.Sprintf("MSH|^~\\&|||||%s||ACK|ACK%s|P|2.5.1", ts, ts)
	msa := fmt.Sprintf("MSA|%s|UNKNOWN|%s", AckReject, sanitize(text))
	return []byte(msh + "\r" + msa + "\r")
}

func ackTimestamp() string {
	return time.Now().UTC().Format("20060102150405")
}

// sanitize keeps free text from smuggling delimiters into the reply.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '|', '^', '~', '\\', '&', '\r', '\n':
			return ' '
		}
		return r
	}, s)
}
