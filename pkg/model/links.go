package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	linkVariable          = regexp.MustCompile(`^(.+)_PORT_(\d+)_TCP$`)
	linkCompanionVariable = regexp.MustCompile(`^(.+)_PORT_(\d+)_TCP_(ADDR|PORT|PROTO)$`)
	linkValue             = regexp.MustCompile(`^tcp://(.+):(\d+)$`)
)

// RenderLinkEnvironment translates links into the environment variables a
// linked application expects. For alias "a", local port P, host H and remote
// port R the variables are A_PORT_P_TCP=tcp://H:R plus the _ADDR, _PORT and
// _PROTO companions, with the alias upper-cased.
func RenderLinkEnvironment(hostname string, links []Link) map[string]string {
	environment := make(map[string]string, len(links)*4)
	for _, link := range links {
		prefix := fmt.Sprintf("%s_PORT_%d_TCP", strings.ToUpper(link.Alias), link.LocalPort)
		environment[prefix] = fmt.Sprintf("tcp://%s:%d", hostname, link.RemotePort)
		environment[prefix+"_ADDR"] = hostname
		environment[prefix+"_PORT"] = strconv.Itoa(link.RemotePort)
		environment[prefix+"_PROTO"] = "tcp"
	}
	return environment
}

// ParseEnvironment splits a unit's environment into the links it encodes and
// the remaining plain variables. The _ADDR/_PORT/_PROTO companions are
// redundant with the primary link variable and are dropped. Variables that
// look like links but whose value does not parse are treated as plain
// environment.
func ParseEnvironment(environment map[string]string) (map[string]string, []Link) {
	plain := map[string]string{}
	links := []Link{}

	for name, value := range environment {
		if linkCompanionVariable.MatchString(name) {
			continue
		}
		match := linkVariable.FindStringSubmatch(name)
		if match == nil {
			plain[name] = value
			continue
		}
		valueMatch := linkValue.FindStringSubmatch(value)
		if valueMatch == nil {
			plain[name] = value
			continue
		}
		localPort, err := strconv.Atoi(match[2])
		if err != nil {
			plain[name] = value
			continue
		}
		remotePort, err := strconv.Atoi(valueMatch[2])
		if err != nil {
			plain[name] = value
			continue
		}
		links = append(links, Link{
			Alias:      strings.ToLower(match[1]),
			LocalPort:  localPort,
			RemotePort: remotePort,
		})
	}
	return plain, links
}
