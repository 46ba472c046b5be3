package sessionoidc

var Classify = classify
