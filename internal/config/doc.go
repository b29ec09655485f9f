// Package config loads the settings of the coordinator and region server
// processes.
//
// Load starts from Default, overlays an optional YAML file and then the
// environment, and validates the result. A missing file is not an error.
// Environment variables use the TORUA_ prefix; NODE_ID, NODE_LISTEN,
// NODE_ADDR and COORDINATOR_ADDR are also accepted for the node.
//
// Region lists in the environment are separated by semicolons or
// whitespace, because region names contain commas:
//
//	TORUA_NODE_REGIONS='-ROOT-,,0;.META.,,1'
package config
