// Package protocol defines the messages exchanged between the vigil hub and
// validator agents over a persistent websocket.
//
// # Envelopes
//
// Every frame is a JSON object of the form {"type": ..., "data": {...}}.
// There are two message families per direction:
//
//	Hub -> Agent:
//	  {"type":"signup",   "data":{"callbackId","validatorId"}}
//	  {"type":"validate", "data":{"url","callbackId","websiteId"}}
//
//	Agent -> Hub:
//	  {"type":"signup",   "data":{"publicKey","ip","callbackId","signedMessage"}}
//	  {"type":"validate", "data":{"status","callbackId","latency","validatorId","signedMessage","websiteId"}}
//
// Each direction is a closed set: HubMessage and AgentMessage can only be
// implemented inside this package, and decoding an unknown "type" is an error
// rather than a silently ignored frame.
//
// # Challenges
//
// Signed payloads are UTF-8 encodings of canonical strings that embed the
// callback id, so a signature cannot be replayed across exchanges:
//
//	signup:   "Signed message for {callbackId}, {publicKey}"
//	validate: "Replying {callbackId}"
//
// # Callback ids
//
// Callback ids are UUIDv7 strings generated by the message's original sender.
// They sort by creation time and are safe to generate from many goroutines.
package protocol
