package swarm

// Labels docker compose and stack deploys put on the containers they create.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
	LabelStackNamespace = "com.docker.stack.namespace"
	LabelSwarmService   = "com.docker.swarm.service.name"
)

// ObjectName returns the name an object declared as name gets on the target.
// Stack deploys prefix every object with "<stack>_".
func ObjectName(stack, name string) string {
	if stack == "" {
		return name
	}
	return stack + "_" + name
}

// serviceOf returns the service a container belongs to, named as ObjectName
// would name it. Swarm task containers already carry the prefixed name.
func serviceOf(labels map[string]string) (string, bool) {
	if svc := labels[LabelComposeService]; svc != "" {
		return ObjectName(labels[LabelComposeProject], svc), true
	}
	if labels[LabelStackNamespace] == "" {
		return "", false
	}
	svc := labels[LabelSwarmService]
	return svc, svc != ""
}
