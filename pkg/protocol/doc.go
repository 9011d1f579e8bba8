/*
Package protocol implements the text framing spoken with the analysis worker.

A message is a command keyword followed by the batch separator and a head slot (a count,
an argument, or nothing), then zero or more records, each prefixed by the batch separator:

	update,M,2,M,add single element,S,7,P,Pump,P,FT,P,0,M,delete single connector,S,9,P,...
	add elements,M,,M,7,P,Pump,P,FT,P,0,M,8,P,Valve,P,FTBasicEvent,P,0
	start neo4j path,M,C:/data/project

Inside a record the single separator splits a single-entity command from its payload, the
field separator splits entity fields and the tag separator splits a named attribute from its
value. No message may reach MaxMessageLength bytes.
*/
package protocol
