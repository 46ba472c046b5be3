package session

var WaitFlight = waitFlight
